package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesRootAtDepthZero(t *testing.T) {
	rc := New(context.Background(), uuid.New(), NewBudget(1000))
	assert.Equal(t, uint8(0), rc.Depth)
	assert.False(t, rc.IsCancelled())
}

func TestChildIncrementsDepth(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()
	assert.Equal(t, uint8(1), child.Depth)
	grandchild := child.Child()
	assert.Equal(t, uint8(2), grandchild.Depth)
}

func TestChildSharesBudget(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()
	child.Budget.AddTokens(100)
	assert.Equal(t, uint32(100), root.Budget.TokensUsed())
}

func TestChildSharesWorkspace(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()
	child.Workspace.Set("key", "value")
	v, ok := root.Workspace.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestCancellingParentCancelsChild(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()
	grandchild := child.Child()

	assert.False(t, child.IsCancelled())
	assert.False(t, grandchild.IsCancelled())

	root.Cancel.Cancel()

	assert.True(t, child.IsCancelled())
	assert.True(t, grandchild.IsCancelled())
}

func TestCancellingChildDoesNotCancelParent(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()

	child.Cancel.Cancel()

	assert.False(t, root.IsCancelled())
	assert.True(t, child.IsCancelled())
}

func TestChildSharesRequestID(t *testing.T) {
	id := uuid.New()
	root := New(context.Background(), id, NewBudget(1000))
	child := root.Child()
	assert.Equal(t, id, child.RequestID)
}

func TestChildSharesCycleDetector(t *testing.T) {
	root := New(context.Background(), uuid.New(), NewBudget(1000))
	child := root.Child()

	require.NoError(t, root.CycleDetector.CheckAndRegister("task", 0))
	require.NoError(t, child.CycleDetector.CheckAndRegister("task", 1))
	require.NoError(t, child.CycleDetector.CheckAndRegister("task", 2))

	err := root.CycleDetector.CheckAndRegister("task", 0)
	assert.Error(t, err)
}
