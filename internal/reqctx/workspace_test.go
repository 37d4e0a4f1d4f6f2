package reqctx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkspaceSetGetRoundtrip(t *testing.T) {
	ws := NewWorkspace()
	ws.Set("key1", "hello")
	v, ok := ws.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestWorkspaceGetMissingReturnsFalse(t *testing.T) {
	ws := NewWorkspace()
	_, ok := ws.Get("missing")
	assert.False(t, ok)
}

func TestWorkspaceSetOverwrites(t *testing.T) {
	ws := NewWorkspace()
	ws.Set("k", 1)
	ws.Set("k", 2)
	v, _ := ws.Get("k")
	assert.Equal(t, 2, v)
}

func TestWorkspaceRemove(t *testing.T) {
	ws := NewWorkspace()
	ws.Set("k", "v")
	v, ok := ws.Remove("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = ws.Get("k")
	assert.False(t, ok)
}

func TestWorkspaceLenAndEmpty(t *testing.T) {
	ws := NewWorkspace()
	assert.True(t, ws.IsEmpty())
	ws.Set("a", 1)
	ws.Set("b", 2)
	assert.Equal(t, 2, ws.Len())
	assert.False(t, ws.IsEmpty())
}

func TestWorkspaceConcurrentAccessNoPanic(t *testing.T) {
	ws := NewWorkspace()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws.Set(string(rune('a'+i%26)), i)
			ws.Get(string(rune('a' + i%26)))
		}(i)
	}
	wg.Wait()
}

func TestWorkspaceCopySharesData(t *testing.T) {
	ws := NewWorkspace()
	ws2 := ws
	ws.Set("shared", "data")
	v, ok := ws2.Get("shared")
	assert.True(t, ok)
	assert.Equal(t, "data", v)
}
