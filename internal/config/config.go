package config

// Config is the fully-resolved runtime configuration for a boternity agent
// process. Load builds one from environment variables (optionally overlaid
// by a config.yaml/config.yml in the working directory).
type Config struct {
	// SystemPrompt overrides the default agent persona (the Soul budget
	// slot). Empty uses the built-in default.
	SystemPrompt string

	LLMClient LLMClientConfig
	// OpenAI mirrors LLMClient.OpenAI for callers that only need the
	// default provider's settings (e.g. the embedding-adjacent summary
	// model). Load keeps the two in sync.
	OpenAI OpenAIConfig

	Embedding EmbeddingConfig

	Workdir     string
	LogPath     string
	LogLevel    string
	LogPayloads bool

	Tokenization TokenizationConfig

	MaxSteps           int
	MaxToolParallelism int

	AgentRunTimeoutSeconds  int
	StreamRunTimeoutSeconds int
	WorkflowTimeoutSeconds  int

	SummaryEnabled               bool
	SummaryContextWindowTokens   int
	SummaryReserveBufferTokens   int
	SummaryMinKeepLastMessages   int
	SummaryMaxKeepLastMessages   int
	SummaryMaxSummaryChunkTokens int

	EnableTools   bool
	ToolAllowList []string

	Exec               ExecConfig
	OutputTruncateByte int

	Sandbox SandboxConfig

	Databases DatabasesConfig

	Obs ObsConfig
}

// LLMClientConfig selects the active provider and carries every provider's
// settings so FallbackChain can wire in whichever ones have credentials.
type LLMClientConfig struct {
	// Provider is the primary provider: "openai", "anthropic", "google", or "local".
	Provider  string
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	SummaryModel   string
	SummaryBaseURL string
	// API selects the request surface: "completions" or "responses".
	API          string
	ExtraHeaders map[string]string
	ExtraParams  map[string]any
	LogPayloads  bool
}

// AnthropicPromptCacheConfig controls prompt-cache breakpoints on requests.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	PromptCache AnthropicPromptCacheConfig
	ExtraParams map[string]any
}

type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout is the per-request timeout in seconds.
	Timeout int
}

// EmbeddingConfig points at the HTTP embeddings endpoint used by
// internal/memory's Embedder and internal/embedding.
type EmbeddingConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	// APIHeader is the header carrying APIKey. "Authorization" sends a
	// Bearer token; any other value is set verbatim to APIKey.
	APIHeader string
	Headers   map[string]string
	Path      string
	// Timeout is the request timeout in seconds.
	Timeout int
}

type TokenizationConfig struct {
	Enabled             bool
	CacheSize           int
	CacheTTLSeconds     int
	FallbackToHeuristic bool
}

// ExecConfig constrains the CLI/process-execution surface available to
// native (Tier 0) skills.
type ExecConfig struct {
	MaxCommandSeconds int
	BlockBinaries     []string
}

// SandboxConfig configures the built-in filesystem and dispatch tools
// wired around TrustTieredExecutor.
type SandboxConfig struct {
	AllowedRoots  []string
	MaxReadBytes  int
	MaxWriteBytes int
	MaxPatchBytes int64
	MaxParallel   int
	WasmSkills    []WasmSkillConfig
}

// WasmSkillConfig declares one WASM skill to register at startup: where
// its compiled module (or stub marker) lives on disk, which trust tier it
// runs at, and which host directories it may see inside the sandbox
// subprocess.
type WasmSkillConfig struct {
	Name         string
	Path         string
	Tier         string
	FSReadPaths  []string
	FSWritePaths []string
}

// VectorDBConfig selects the VectorStore backend: "memory" for the
// in-process implementation, "qdrant" to dial a Qdrant cluster.
type VectorDBConfig struct {
	Backend    string
	DSN        string
	Index      string
	Dimensions int
	Metric     string
}

// ChatDBConfig selects the ChatRepository backend: "memory" or "postgres".
// A "postgres" backend also backs the skill audit log on the same pool.
type ChatDBConfig struct {
	Backend string
	DSN     string
}

// RedisConfig points at the Redis instance backing the cross-bot shared
// memory pool's search cache. Empty Addr leaves the pool uncached.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheTTLSeconds bounds how long a cached Search result stays fresh.
	CacheTTLSeconds int
}

type DatabasesConfig struct {
	DefaultDSN string
	Vector     VectorDBConfig
	Chat       ChatDBConfig
	Redis      RedisConfig
}

type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}
