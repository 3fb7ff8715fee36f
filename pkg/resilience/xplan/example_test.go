package xplan_test

import (
	"fmt"

	"github.com/omeyang/xadmit/pkg/resilience/xplan"
)

func ExampleOptimalConcurrency() {
	plan, err := xplan.OptimalConcurrency(50, 10, 100, 100)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(plan)
	// Output: 5 pages x 10 files = 50
}

func ExampleValidateConfig() {
	ok, warnings := xplan.ValidateConfig(xplan.Workload{
		PageConcurrency: 5,
		FileCount:       2,
		RPM:             150,
		TPM:             2_000_000,
		RPD:             10_000,
		GlobalCapacity:  200,
	})
	fmt.Println(ok, len(warnings))
	// Output: true 0
}
