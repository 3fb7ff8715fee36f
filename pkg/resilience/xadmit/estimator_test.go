package xadmit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_Estimate(t *testing.T) {
	e := DefaultEstimator()
	assert.Equal(t, 500, e.Estimate(0, 0))
	assert.Equal(t, 500+4000+3*258, e.Estimate(4000, 3))
	assert.Equal(t, 500, e.Estimate(-10, -2))

	custom := Estimator{PromptOverhead: 100, PerAttachment: 10}
	assert.Equal(t, 100+50+20, custom.Estimate(50, 2))
	assert.Zero(t, Estimator{PromptOverhead: -5, PerAttachment: -1}.Estimate(0, 4))
}
