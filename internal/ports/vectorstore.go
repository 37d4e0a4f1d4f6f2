package ports

import "boternity/internal/memory"

// VectorStore re-exports memory.Store as an external-interface port: the
// embedding-indexed table behind add/search/dedupe/re-embed, as specified
// for the memory core. Kept as an alias rather than a new interface so
// internal/memory.Store remains the single source of truth for the method
// set; callers that only know about ports (e.g. a future HTTP handler
// layer) can depend on this name without importing internal/memory.
type VectorStore = memory.Store

// SharedMemoryStore re-exports memory.SharedPool the same way.
type SharedMemoryStore = memory.SharedPool
