package reqctx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boternity/internal/errs"
)

func TestCycleDetectorFirstOccurrenceOk(t *testing.T) {
	d := NewCycleDetector()
	assert.NoError(t, d.CheckAndRegister("Research topic X", 0))
}

func TestCycleDetectorRepeatedTasksTriggerCycle(t *testing.T) {
	d := NewCycleDetectorWithThreshold(2)
	assert.NoError(t, d.CheckAndRegister("do the thing", 0))
	assert.NoError(t, d.CheckAndRegister("do the thing", 1))
	err := d.CheckAndRegister("do the thing", 2)
	require.Error(t, err)
	var cd *errs.CycleDetected
	assert.True(t, errors.As(err, &cd))
}

func TestCycleDetectorDifferentTasksDontInterfere(t *testing.T) {
	d := NewCycleDetectorWithThreshold(1)
	assert.NoError(t, d.CheckAndRegister("task A", 0))
	assert.NoError(t, d.CheckAndRegister("task B", 0))
	assert.NoError(t, d.CheckAndRegister("task C", 0))
}

func TestCycleDetectorNormalizesWhitespaceAndCase(t *testing.T) {
	d := NewCycleDetectorWithThreshold(1)
	assert.NoError(t, d.CheckAndRegister("  Research Topic  ", 0))
	err := d.CheckAndRegister("research topic", 1)
	require.Error(t, err)
}

func TestCycleDetectorDefaultThresholdIsThree(t *testing.T) {
	d := NewCycleDetector()
	assert.NoError(t, d.CheckAndRegister("t", 0))
	assert.NoError(t, d.CheckAndRegister("t", 0))
	assert.NoError(t, d.CheckAndRegister("t", 0))
	assert.Error(t, d.CheckAndRegister("t", 0))
}

func TestCycleDetectorDescriptionFormat(t *testing.T) {
	d := NewCycleDetectorWithThreshold(1)
	require.NoError(t, d.CheckAndRegister("Summarize results", 0))
	err := d.CheckAndRegister("summarize results", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize results")
	assert.Contains(t, err.Error(), "2 times")
	assert.Contains(t, err.Error(), "threshold: 1")
}
