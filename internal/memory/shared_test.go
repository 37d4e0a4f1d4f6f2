package memory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWriteHashDeterministic(t *testing.T) {
	author := uuid.New()
	h1 := writeHash("the sky is blue", CategoryFact, author)
	h2 := writeHash("the sky is blue", CategoryFact, author)
	require.Equal(t, h1, h2)
}

func TestWriteHashChangesWithInputs(t *testing.T) {
	author := uuid.New()
	other := uuid.New()
	base := writeHash("fact one", CategoryFact, author)

	require.NotEqual(t, base, writeHash("fact two", CategoryFact, author))
	require.NotEqual(t, base, writeHash("fact one", CategoryDecision, author))
	require.NotEqual(t, base, writeHash("fact one", CategoryFact, other))
}
