package ports

import "boternity/internal/memory"

var (
	_ VectorStore       = memory.NewMemStore()
	_ SharedMemoryStore = memory.NewSharedPool(nil, "cosine", nil)
)
