package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally .env),
// then fills any remaining gaps from config.yaml/config.yml in the working
// directory, then applies defaults.
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables,
	// letting a repo-local .env deterministically control development runs.
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.Tokenization.FallbackToHeuristic = true

	cfg.SystemPrompt = strings.TrimSpace(os.Getenv("SYSTEM_PROMPT"))
	cfg.LLMClient.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE_URL")); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_SUMMARY_URL")); v != "" {
		cfg.OpenAI.SummaryBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_SUMMARY_MODEL")); v != "" {
		cfg.OpenAI.SummaryModel = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API")); v != "" {
		cfg.OpenAI.API = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.LogPayloads = parseBool(v)
		cfg.OpenAI.LogPayloads = cfg.LogPayloads
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLMClient.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); v != "" {
		cfg.LLMClient.Anthropic.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.LLMClient.Anthropic.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE")); v != "" {
		cfg.LLMClient.Anthropic.PromptCache.Enabled = parseBool(v)
	}

	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY")); v != "" {
		cfg.LLMClient.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL")); v != "" {
		cfg.LLMClient.Google.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL")); v != "" {
		cfg.LLMClient.Google.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMClient.Google.Timeout = n
		}
	}

	cfg.Workdir = strings.TrimSpace(os.Getenv("WORKDIR"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	if v := strings.TrimSpace(os.Getenv("MAX_COMMAND_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Exec.MaxCommandSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BLOCK_BINARIES")); v != "" {
		for _, p := range parseCommaSeparatedList(v) {
			if strings.ContainsAny(p, `/\`) {
				return Config{}, fmt.Errorf("BLOCK_BINARIES must contain bare binary names only (no paths): %q", p)
			}
			cfg.Exec.BlockBinaries = append(cfg.Exec.BlockBinaries, p)
		}
	}
	if v := strings.TrimSpace(os.Getenv("OUTPUT_TRUNCATE_BYTES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.OutputTruncateByte = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_STEPS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_TOOL_PARALLELISM")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.MaxToolParallelism = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_RUN_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.AgentRunTimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STREAM_RUN_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.StreamRunTimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WORKFLOW_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.WorkflowTimeoutSeconds = n
		}
	}

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if v := strings.TrimSpace(os.Getenv("SUMMARY_ENABLED")); v != "" {
		cfg.SummaryEnabled = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_CONTEXT_WINDOW_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SummaryContextWindowTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_RESERVE_BUFFER_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SummaryReserveBufferTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_MIN_KEEP_LAST_MESSAGES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SummaryMinKeepLastMessages = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_MAX_KEEP_LAST_MESSAGES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SummaryMaxKeepLastMessages = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_MAX_SUMMARY_CHUNK_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.SummaryMaxSummaryChunkTokens = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ENABLE_TOOLS")); v != "" {
		cfg.EnableTools = parseBool(v)
	} else {
		cfg.EnableTools = true
	}
	if v := strings.TrimSpace(os.Getenv("ALLOW_TOOLS")); v != "" {
		cfg.ToolAllowList = parseCommaSeparatedList(v)
	}

	if v := strings.TrimSpace(os.Getenv("SANDBOX_ALLOWED_ROOTS")); v != "" {
		cfg.Sandbox.AllowedRoots = parseCommaSeparatedList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_MAX_READ_BYTES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sandbox.MaxReadBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_MAX_WRITE_BYTES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sandbox.MaxWriteBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_MAX_PATCH_BYTES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sandbox.MaxPatchBytes = int64(n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("SANDBOX_MAX_PARALLEL")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sandbox.MaxParallel = n
		}
	}

	cfg.Databases.DefaultDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("DB_URL"))
	cfg.Databases.Vector.Backend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.Databases.Vector.DSN = strings.TrimSpace(os.Getenv("VECTOR_DSN"))
	cfg.Databases.Vector.Index = strings.TrimSpace(os.Getenv("VECTOR_INDEX"))
	if v := strings.TrimSpace(os.Getenv("VECTOR_DIMENSIONS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Databases.Vector.Dimensions = n
		}
	}
	cfg.Databases.Vector.Metric = strings.TrimSpace(os.Getenv("VECTOR_METRIC"))
	cfg.Databases.Chat.Backend = strings.TrimSpace(os.Getenv("CHAT_BACKEND"))
	cfg.Databases.Chat.DSN = firstNonEmpty(os.Getenv("CHAT_DSN"), os.Getenv("DATABASE_URL"))

	cfg.Databases.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Databases.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Databases.Redis.DB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_CACHE_TTL_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Databases.Redis.CacheTTLSeconds = n
		}
	}

	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBED_MODEL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.APIHeader = strings.TrimSpace(os.Getenv("EMBED_API_HEADER"))
	cfg.Embedding.Path = strings.TrimSpace(os.Getenv("EMBED_PATH"))
	if v := strings.TrimSpace(os.Getenv("EMBED_TIMEOUT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Embedding.Timeout = n
		}
	}

	if err := overlayYAML(&cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)

	if cfg.OpenAI.APIKey == "" && cfg.LLMClient.Anthropic.APIKey == "" && cfg.LLMClient.Google.APIKey == "" {
		return Config{}, errors.New("at least one LLM provider must be configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, or GOOGLE_LLM_API_KEY)")
	}
	if cfg.Workdir == "" {
		return Config{}, errors.New("WORKDIR is required (set in .env or environment)")
	}

	absWD, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve WORKDIR: %w", err)
	}
	info, err := os.Stat(absWD)
	if err != nil {
		return Config{}, fmt.Errorf("stat WORKDIR: %w", err)
	}
	if !info.IsDir() {
		return Config{}, fmt.Errorf("WORKDIR must be a directory: %s", absWD)
	}
	cfg.Workdir = absWD
	if len(cfg.Sandbox.AllowedRoots) == 0 {
		cfg.Sandbox.AllowedRoots = []string{absWD}
	}

	cfg.LLMClient.OpenAI = cfg.OpenAI

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.SummaryModel == "" {
		cfg.OpenAI.SummaryModel = cfg.OpenAI.Model
	}
	if cfg.OpenAI.SummaryBaseURL == "" {
		cfg.OpenAI.SummaryBaseURL = cfg.OpenAI.BaseURL
	}
	if cfg.OpenAI.API == "" {
		cfg.OpenAI.API = "completions"
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.LLMClient.Provider))
	if provider == "" {
		switch {
		case cfg.OpenAI.APIKey != "":
			provider = "openai"
		case cfg.LLMClient.Anthropic.APIKey != "":
			provider = "anthropic"
		case cfg.LLMClient.Google.APIKey != "":
			provider = "google"
		default:
			provider = "openai"
		}
	}
	cfg.LLMClient.Provider = provider

	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "boternity"
	}
	if cfg.Obs.Environment == "" {
		cfg.Obs.Environment = "dev"
	}

	if cfg.Exec.MaxCommandSeconds == 0 {
		cfg.Exec.MaxCommandSeconds = 30
	}
	if cfg.OutputTruncateByte == 0 {
		cfg.OutputTruncateByte = 64 * 1024
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 8
	}
	if cfg.AgentRunTimeoutSeconds < 0 {
		cfg.AgentRunTimeoutSeconds = 0
	}
	if cfg.StreamRunTimeoutSeconds < 0 {
		cfg.StreamRunTimeoutSeconds = 0
	}
	if cfg.WorkflowTimeoutSeconds < 0 {
		cfg.WorkflowTimeoutSeconds = 0
	}

	if cfg.Tokenization.CacheSize <= 0 {
		cfg.Tokenization.CacheSize = 1000
	}
	if cfg.Tokenization.CacheTTLSeconds <= 0 {
		cfg.Tokenization.CacheTTLSeconds = 3600
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Path == "" {
		cfg.Embedding.Path = "/v1/embeddings"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}

	if cfg.Databases.Vector.Backend == "" {
		cfg.Databases.Vector.Backend = "memory"
	}
	if cfg.Databases.Vector.Metric == "" {
		cfg.Databases.Vector.Metric = "cosine"
	}
	if cfg.Databases.Chat.Backend == "" {
		cfg.Databases.Chat.Backend = "memory"
	}

	if cfg.Sandbox.MaxReadBytes == 0 {
		cfg.Sandbox.MaxReadBytes = 1 << 20
	}
	if cfg.Sandbox.MaxWriteBytes == 0 {
		cfg.Sandbox.MaxWriteBytes = 1 << 20
	}
	if cfg.Sandbox.MaxPatchBytes == 0 {
		cfg.Sandbox.MaxPatchBytes = 1 << 20
	}
	if cfg.Sandbox.MaxParallel == 0 {
		cfg.Sandbox.MaxParallel = 4
	}

	if cfg.SummaryContextWindowTokens == 0 {
		cfg.SummaryContextWindowTokens = 128_000
	}
	if cfg.SummaryReserveBufferTokens == 0 {
		cfg.SummaryReserveBufferTokens = 25_000
	}
	if cfg.SummaryMinKeepLastMessages == 0 {
		cfg.SummaryMinKeepLastMessages = 4
	}
	if cfg.SummaryMaxSummaryChunkTokens == 0 {
		cfg.SummaryMaxSummaryChunkTokens = 4_000
	}
}

// yamlOverlay is the optional config.yaml/config.yml shape. Only settings
// that make sense to version-control (no secrets) are read from it; it
// never overrides a value already supplied via the environment.
type yamlOverlay struct {
	SystemPrompt  string   `yaml:"systemPrompt"`
	Workdir       string   `yaml:"workdir"`
	LogPath       string   `yaml:"logPath"`
	LogLevel      string   `yaml:"logLevel"`
	MaxSteps      int      `yaml:"maxSteps"`
	EnableTools   *bool    `yaml:"enableTools"`
	AllowTools    []string `yaml:"allowTools"`
	BlockBinaries []string `yaml:"blockBinaries"`
	Sandbox       struct {
		AllowedRoots []string `yaml:"allowedRoots"`
		MaxParallel  int      `yaml:"maxParallel"`
		WasmSkills   []struct {
			Name         string   `yaml:"name"`
			Path         string   `yaml:"path"`
			Tier         string   `yaml:"tier"`
			FSReadPaths  []string `yaml:"fsReadPaths"`
			FSWritePaths []string `yaml:"fsWritePaths"`
		} `yaml:"wasmSkills"`
	} `yaml:"sandbox"`
	Databases struct {
		Vector struct {
			Backend    string `yaml:"backend"`
			DSN        string `yaml:"dsn"`
			Index      string `yaml:"index"`
			Dimensions int    `yaml:"dimensions"`
			Metric     string `yaml:"metric"`
		} `yaml:"vector"`
		Chat struct {
			Backend string `yaml:"backend"`
			DSN     string `yaml:"dsn"`
		} `yaml:"chat"`
	} `yaml:"databases"`
}

// overlayYAML fills gaps left by the environment from config.yaml/config.yml
// in the working directory, if present. Absence of the file is not an error.
func overlayYAML(cfg *Config) error {
	var data []byte
	for _, p := range []string{"config.yaml", "config.yml"} {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("read %s: %w", p, err)
		}
	}
	if len(data) == 0 {
		return nil
	}

	var w yamlOverlay
	if err := yaml.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse config.yaml: %w", err)
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = w.SystemPrompt
	}
	if cfg.Workdir == "" {
		cfg.Workdir = w.Workdir
	}
	if cfg.LogPath == "" {
		cfg.LogPath = w.LogPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = w.LogLevel
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = w.MaxSteps
	}
	if w.EnableTools != nil && strings.TrimSpace(os.Getenv("ENABLE_TOOLS")) == "" {
		cfg.EnableTools = *w.EnableTools
	}
	if len(cfg.ToolAllowList) == 0 {
		cfg.ToolAllowList = w.AllowTools
	}
	if len(cfg.Exec.BlockBinaries) == 0 {
		cfg.Exec.BlockBinaries = w.BlockBinaries
	}
	if len(cfg.Sandbox.AllowedRoots) == 0 {
		cfg.Sandbox.AllowedRoots = w.Sandbox.AllowedRoots
	}
	if cfg.Sandbox.MaxParallel == 0 {
		cfg.Sandbox.MaxParallel = w.Sandbox.MaxParallel
	}
	if len(cfg.Sandbox.WasmSkills) == 0 {
		for _, s := range w.Sandbox.WasmSkills {
			cfg.Sandbox.WasmSkills = append(cfg.Sandbox.WasmSkills, WasmSkillConfig{
				Name:         s.Name,
				Path:         s.Path,
				Tier:         s.Tier,
				FSReadPaths:  s.FSReadPaths,
				FSWritePaths: s.FSWritePaths,
			})
		}
	}
	if cfg.Databases.Vector.Backend == "" {
		cfg.Databases.Vector.Backend = w.Databases.Vector.Backend
	}
	if cfg.Databases.Vector.DSN == "" {
		cfg.Databases.Vector.DSN = w.Databases.Vector.DSN
	}
	if cfg.Databases.Vector.Index == "" {
		cfg.Databases.Vector.Index = w.Databases.Vector.Index
	}
	if cfg.Databases.Vector.Dimensions == 0 {
		cfg.Databases.Vector.Dimensions = w.Databases.Vector.Dimensions
	}
	if cfg.Databases.Vector.Metric == "" {
		cfg.Databases.Vector.Metric = w.Databases.Vector.Metric
	}
	if cfg.Databases.Chat.Backend == "" {
		cfg.Databases.Chat.Backend = w.Databases.Chat.Backend
	}
	if cfg.Databases.Chat.DSN == "" {
		cfg.Databases.Chat.DSN = w.Databases.Chat.DSN
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
