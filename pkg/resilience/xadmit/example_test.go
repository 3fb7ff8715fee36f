package xadmit_test

import (
	"context"
	"fmt"

	"github.com/omeyang/xadmit/pkg/resilience/xadmit"
	"github.com/omeyang/xadmit/pkg/resilience/xgate"
	"github.com/omeyang/xadmit/pkg/resilience/xwindow"
)

func ExampleController_Do() {
	gate, err := xgate.New(10)
	if err != nil {
		panic(err)
	}
	defer gate.Close()
	limiter, err := xwindow.New(xwindow.Limits{RPM: 150, TPM: 2_000_000, RPD: 10_000})
	if err != nil {
		panic(err)
	}
	ctrl, err := xadmit.New(gate, limiter)
	if err != nil {
		panic(err)
	}

	tokens := xadmit.DefaultEstimator().Estimate(4000, 2)
	err = ctrl.Do(context.Background(), xadmit.Request{ID: "page-1", Tokens: tokens}, func(ctx context.Context) error {
		return nil
	})
	fmt.Println(tokens, err, gate.Stats().InFlight)
	// Output: 5016 <nil> 0
}
