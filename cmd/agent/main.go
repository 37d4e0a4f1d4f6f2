package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"boternity/internal/agent"
	"boternity/internal/agent/prompts"
	"boternity/internal/config"
	llmpkg "boternity/internal/llm"
	llmproviders "boternity/internal/llm/providers"
	"boternity/internal/memory"
	"boternity/internal/observability"
	"boternity/internal/ports"
	"boternity/internal/sandbox"
	"boternity/internal/tools"
	"boternity/internal/tools/filetool"
	"boternity/internal/tools/multitool"
	"boternity/internal/tools/skillexec"
)

const defaultRunTimeout = 2 * time.Minute

// defaultMaxEmbeddingsInFlight bounds concurrent embedding calls issued by
// the CLI's recall lookups and any future remember calls.
const defaultMaxEmbeddingsInFlight = 4

func main() {
	if len(os.Args) > 1 && os.Args[1] == sandbox.ChildSentinel {
		if err := sandbox.RunChild(context.Background(), os.Stdin, os.Stdout, os.Stderr); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	q := flag.String("q", "", "User request")
	maxSteps := flag.Int("max-steps", cfg.MaxSteps, "Max reasoning steps")
	flag.Parse()
	if *q == "" {
		fmt.Fprintln(os.Stderr, "usage: agent -q \"...\"")
		os.Exit(2)
	}

	if err := run(&cfg, *q, *maxSteps); err != nil {
		log.Fatal().Err(err).Msg("agent")
	}
}

func run(cfg *config.Config, query string, maxSteps int) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Msg("agent starting")
	baseCtx := context.Background()
	shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	llmpkg.ConfigureLogging(cfg.LogPayloads, cfg.OutputTruncateByte)

	httpClient := observability.NewHTTPClient(nil)

	llm, err := llmproviders.Build(*cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	exec, err := sandbox.NewTrustTieredExecutor(baseCtx)
	if err != nil {
		return fmt.Errorf("init sandbox executor: %w", err)
	}
	defer func() { _ = exec.Close(baseCtx) }()

	for _, ws := range cfg.Sandbox.WasmSkills {
		tier := sandbox.TierVerified
		if ws.Tier == sandbox.TierUntrusted.String() {
			tier = sandbox.TierUntrusted
		}
		manifest := sandbox.SkillManifest{
			Name:        ws.Name,
			Tier:        tier,
			Permissions: sandbox.Permissions{FSReadPaths: ws.FSReadPaths, FSWritePaths: ws.FSWritePaths},
		}
		if err := exec.RegisterWasmSkill(baseCtx, ws.Path, manifest); err != nil {
			log.Warn().Err(err).Str("skill", ws.Name).Msg("wasm_skill_register_failed")
		}
	}

	var auditLog ports.SkillAuditLog
	var chatRepo ports.ChatRepository
	if cfg.Databases.Chat.Backend == "postgres" && cfg.Databases.Chat.DSN != "" {
		pool, err := newPgPool(baseCtx, cfg.Databases.Chat.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("postgres_pool_init_failed, falling back to in-memory chat/audit storage")
		} else {
			defer pool.Close()
			pgChat := ports.NewPostgresChatRepository(pool)
			pgAudit := ports.NewPostgresSkillAuditLog(pool)
			if err := initPersistence(baseCtx, pgChat, pgAudit); err != nil {
				log.Warn().Err(err).Msg("postgres_schema_init_failed, falling back to in-memory chat/audit storage")
			} else {
				chatRepo = pgChat
				auditLog = pgAudit
			}
		}
	}
	if auditLog == nil {
		auditLog = ports.NewMemSkillAuditLog()
	}
	if chatRepo == nil {
		chatRepo = ports.NewMemChatRepository()
	}
	botID := uuid.New()

	registry := tools.NewBuiltinRegistry(baseCtx, tools.Builtins{
		AllowedRoots:  cfg.Sandbox.AllowedRoots,
		MaxReadBytes:  cfg.Sandbox.MaxReadBytes,
		MaxWriteBytes: cfg.Sandbox.MaxWriteBytes,
		MaxPatchBytes: cfg.Sandbox.MaxPatchBytes,
		MaxParallel:   cfg.Sandbox.MaxParallel,
		OnDispatch: func(ev tools.DispatchEvent) {
			rec := ports.SkillAuditRecord{
				BotID:       botID,
				SkillName:   ev.Name,
				InputDigest: ports.DigestInput(ev.Args),
				OK:          ev.Err == nil,
			}
			if ev.Err != nil {
				rec.Error = ev.Err.Error()
			}
			if ev.Name == "run_skill" {
				enrichSkillAuditRecord(&rec, ev.Payload)
			}
			if err := auditLog.Record(baseCtx, rec); err != nil {
				log.Warn().Err(err).Str("skill", ev.Name).Msg("audit_record_failed")
			}
		},
	}, tools.BuiltinFactory{
		NewFileTools: func(allowedRoots []string, maxRead, maxWrite int, maxPatch int64) []tools.Tool {
			return []tools.Tool{
				filetool.NewReadTool(allowedRoots, maxRead),
				filetool.NewWriteTool(allowedRoots, maxWrite),
				filetool.NewPatchTool(allowedRoots, maxPatch),
			}
		},
		NewParallelTool: func(reg tools.Registry, maxParallel int) tools.Tool {
			return multitool.NewParallel(reg, multitool.WithMaxParallel(maxParallel))
		},
		NewRunSkillTool: func(exec *sandbox.TrustTieredExecutor) tools.Tool {
			return skillexec.New(exec)
		},
	}, exec)

	if !cfg.EnableTools {
		registry = tools.NewRegistry()
	} else if len(cfg.ToolAllowList) > 0 {
		registry = tools.NewFilteredRegistry(registry, cfg.ToolAllowList)
	}

	var recall *memory.Service
	var embedder memory.Embedder
	store, err := newMemoryStore(cfg.Databases.Vector)
	if err != nil {
		log.Warn().Err(err).Msg("memory_store_init_failed, recall disabled")
	} else {
		embedder = memory.NewHTTPEmbedder(cfg.Embedding, defaultMaxEmbeddingsInFlight)
		recall = memory.NewService(botID, store, embedder)
	}

	sharedFacts := recallSharedPool(baseCtx, *cfg, botID, embedder, query)

	systemPrompt := prompts.DefaultSystemPrompt(cfg.Workdir, cfg.SystemPrompt)
	if sharedFacts != "" {
		systemPrompt += "\n\nFacts shared by other bots:\n" + sharedFacts
	}

	eng := agent.Engine{
		LLM:                          llm,
		Tools:                        registry,
		MaxSteps:                     maxSteps,
		System:                       systemPrompt,
		MaxToolParallelism:           cfg.MaxToolParallelism,
		SummaryEnabled:               cfg.SummaryEnabled,
		SummaryReserveBufferTokens:   cfg.SummaryReserveBufferTokens,
		SummaryMinKeepLastMessages:   cfg.SummaryMinKeepLastMessages,
		SummaryMaxSummaryChunkTokens: cfg.SummaryMaxSummaryChunkTokens,
	}
	if recall != nil {
		eng.Memory = recall
	}
	eng.AttachTokenizer(llm, nil)

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.AgentRunTimeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(baseCtx, time.Duration(cfg.AgentRunTimeoutSeconds)*time.Second)
	} else {
		ctx, cancel = context.WithTimeout(baseCtx, defaultRunTimeout)
	}
	defer cancel()

	final, err := eng.Run(ctx, query, nil)
	if err != nil {
		return err
	}
	fmt.Println(final)

	persistTurn(baseCtx, chatRepo, botID, query, final)
	return nil
}

// persistTurn logs a single CLI turn to a per-bot chat session. Failures are
// logged, not fatal: chat history is a convenience, not load-bearing for the
// run that just produced the answer.
func persistTurn(ctx context.Context, repo ports.ChatRepository, botID uuid.UUID, query, final string) {
	sessionID := "cli-" + botID.String()
	if _, err := repo.EnsureSession(ctx, nil, sessionID, "CLI session"); err != nil {
		log.Warn().Err(err).Msg("chat_session_ensure_failed")
		return
	}
	messages := []ports.ChatMessage{
		{Role: "user", Content: query},
		{Role: "assistant", Content: final},
	}
	preview := final
	if len(preview) > 120 {
		preview = preview[:120]
	}
	if err := repo.AppendMessages(ctx, nil, sessionID, messages, preview, ""); err != nil {
		log.Warn().Err(err).Msg("chat_append_failed")
	}
}

// newMemoryStore picks the VectorStore backend named by cfg: "qdrant" dials
// a cluster, anything else (including the default "memory") uses the
// in-process store.
func newMemoryStore(cfg config.VectorDBConfig) (memory.Store, error) {
	if cfg.Backend == "qdrant" {
		return memory.NewQdrantStore(cfg.DSN, cfg.Metric)
	}
	return memory.NewMemStore(), nil
}

// newPgPool opens a pooled Postgres connection and pings it once before
// returning, so a misconfigured DSN is caught at startup rather than on the
// first query.
func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = 8
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type initer interface {
	Init(ctx context.Context) error
}

// initPersistence creates the schema each Postgres-backed store needs, if it
// doesn't already exist.
func initPersistence(ctx context.Context, stores ...any) error {
	for _, s := range stores {
		if i, ok := s.(initer); ok {
			if err := i.Init(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// recallSharedPool looks up facts other bots have shared publicly or with
// this bot specifically, through a Redis-cached cross-bot SharedPool when
// Qdrant and Redis are both configured. Absence of either is not an error:
// the CLI runs fine on local-only memory.
func recallSharedPool(ctx context.Context, cfg config.Config, botID uuid.UUID, embedder memory.Embedder, query string) string {
	if cfg.Databases.Vector.Backend != "qdrant" || embedder == nil {
		return ""
	}
	client, err := memory.NewQdrantClient(cfg.Databases.Vector.DSN)
	if err != nil {
		log.Warn().Err(err).Msg("shared_pool_qdrant_init_failed")
		return ""
	}
	defer client.Close()

	pool := memory.NewSharedPool(client, cfg.Databases.Vector.Metric, func(ev memory.IntegrityEvent) {
		log.Warn().Str("memory_id", ev.MemoryID.String()).Str("author", ev.AuthorID.String()).Msg("shared_pool_integrity_violation")
	})
	if cfg.Databases.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr,
			Password: cfg.Databases.Redis.Password,
			DB:       cfg.Databases.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis_ping_failed, shared pool running uncached")
		} else {
			ttl := time.Duration(cfg.Databases.Redis.CacheTTLSeconds) * time.Second
			pool = memory.NewCachedSharedPool(pool, rdb, ttl)
		}
	}

	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return ""
	}
	ranked, err := pool.Search(ctx, botID, nil, vecs[0], memory.DefaultRecallLimit)
	if err != nil {
		log.Warn().Err(err).Msg("shared_pool_search_failed")
		return ""
	}
	var b strings.Builder
	for _, r := range ranked {
		fmt.Fprintf(&b, "- (%s) %s\n", r.Entry.Category, r.Entry.Fact)
	}
	return strings.TrimRight(b.String(), "\n")
}

// enrichSkillAuditRecord fills in rec's trust tier, fuel, and duration
// fields from a run_skill dispatch's JSON payload, which embeds
// sandbox.Response (see skillexec.Tool.Call's result type) alongside the
// tier name. Skill-level failure is reported inside that payload's own
// ok/error fields rather than as a dispatch error, so rec.OK is corrected
// here too instead of trusting ev.Err == nil.
func enrichSkillAuditRecord(rec *ports.SkillAuditRecord, payload []byte) {
	var parsed struct {
		OK              bool   `json:"ok"`
		Error           string `json:"error"`
		FuelConsumed    uint64 `json:"fuel_consumed"`
		MemoryPeakBytes uint64 `json:"memory_peak_bytes"`
		WallDurationMS  int64  `json:"wall_duration_ms"`
		Tier            string `json:"tier"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return
	}
	rec.OK = parsed.OK
	if parsed.Error != "" {
		rec.Error = parsed.Error
	}
	rec.FuelUsed = parsed.FuelConsumed
	rec.Duration = time.Duration(parsed.WallDurationMS) * time.Millisecond
	switch parsed.Tier {
	case sandbox.TierVerified.String():
		rec.TrustTier = sandbox.TierVerified
	case sandbox.TierUntrusted.String():
		rec.TrustTier = sandbox.TierUntrusted
	default:
		rec.TrustTier = sandbox.TierLocal
	}
}
