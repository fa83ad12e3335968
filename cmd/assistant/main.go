// Command assistant is the interactive terminal driver: it loads config,
// opens the store the sync daemon already populated, wires every tool
// against it, and runs a read-eval-print loop against Agent.Respond.
// Grounded on the teacher's cmd/bot_example/main.go: numbered setup steps,
// optional OTEL opt-in, collectTools/wrapTool helpers.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	deskmirror "github.com/mjhale/deskmirror"
	"github.com/mjhale/deskmirror/internal/config"
	"github.com/mjhale/deskmirror/internal/llmhttp"
	"github.com/mjhale/deskmirror/internal/telemetry"
	"github.com/mjhale/deskmirror/internal/workspace"
	"github.com/mjhale/deskmirror/store/postgres"
	"github.com/mjhale/deskmirror/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 1. Load config.
	cfg := config.Load(os.Getenv("DESKMIRROR_CONFIG"))

	// 2. Create providers.
	var chatLLM deskmirror.Provider = llmhttp.NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.Model)
	var intentLLM deskmirror.Provider
	if cfg.Intent.Provider != "" {
		intentLLM = llmhttp.NewAnthropicProvider(cfg.Intent.APIKey, cfg.Intent.Model)
	}
	embedding := llmhttp.NewVoyageEmbeddingProvider(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	// 3. Observer (opt-in via config).
	var inst *telemetry.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = telemetry.Init(ctx, "deskmirror-assistant")
		if err != nil {
			log.Fatalf("telemetry init failed: %v", err)
		}
		defer shutdown(context.Background())

		chatLLM = telemetry.WrapProvider(chatLLM, cfg.LLM.Model, inst)
		if intentLLM != nil {
			intentLLM = telemetry.WrapProvider(intentLLM, cfg.Intent.Model, inst)
		}
		logger.Info("OTEL observability enabled")
	}

	// 4. Open the store.
	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// 5. Preferences + session, backed by bbolt alongside the embedded store.
	prefsStore, err := deskmirror.NewPrefsStore(statePath(cfg, "prefs.db"))
	if err != nil {
		log.Fatalf("open preferences store: %v", err)
	}
	defer prefsStore.Close()
	prefs, err := prefsStore.Load()
	if err != nil {
		log.Fatalf("load preferences: %v", err)
	}

	sessionStore, err := deskmirror.NewSessionStore(statePath(cfg, "sessions.db"))
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}
	defer sessionStore.Close()
	session, resumed, err := sessionStore.GetOrCreate()
	if err != nil {
		log.Fatalf("load session: %v", err)
	}
	if resumed {
		logger.Info("resumed session", "session_id", session.ID)
	} else {
		logger.Info("started new session", "session_id", session.ID)
	}

	// 6. Collect tools.
	resolver := deskmirror.NewEntityResolver(store, 5*time.Minute)
	selfUserID := selfUserID(ctx, cfg, logger)

	var wsClient workspace.Client
	var gate *deskmirror.RateGate
	if cfg.Upstream.Token != "" {
		wsClient = workspace.NewHTTPClient(cfg.Upstream.Host, cfg.Upstream.Token)
		gate = deskmirror.NewRateGate(deskmirror.DefaultRetryConfig, logger)
	}

	tools := deskmirror.NewToolRegistry()
	tools.Add(wrapTool(&deskmirror.AnalyzeMessagesTool{
		Store: store, Resolver: resolver, Session: &session, UserID: selfUserID, Host: cfg.Upstream.Host,
	}, inst))
	tools.Add(wrapTool(&deskmirror.StatusTool{
		Store: store, Session: &session, Prefs: &prefs, UserID: selfUserID,
	}, inst))
	tools.Add(wrapTool(&deskmirror.ThreadTool{
		Store: store, Resolver: resolver, Client: wsClient, Gate: gate,
	}, inst))
	tools.Add(wrapTool(&deskmirror.SearchTool{
		Store: store, Embeddings: embedding, Resolver: resolver, Client: wsClient, Gate: gate,
	}, inst))
	tools.Add(wrapTool(&deskmirror.FindContextTool{
		Store: store, Embeddings: embedding, Resolver: resolver,
	}, inst))
	tools.Add(wrapTool(&deskmirror.PreferencesTool{
		Prefs: &prefs, Store: prefsStore,
	}, inst))
	tools.Add(wrapTool(&deskmirror.SessionTool{
		Session: &session, Store: sessionStore,
	}, inst))
	tools.Add(wrapTool(&deskmirror.RemindersTool{
		Store: store, UserID: selfUserID,
	}, inst))

	// 7. Build the agent.
	summarizer := deskmirror.NewSummarizer(chatLLM, cfg.Context.MaxRecentTurns, cfg.Context.SummarizeThreshold, logger)
	var tracer deskmirror.Tracer
	if inst != nil {
		tracer = inst.Tracer
	}
	agent := deskmirror.NewAgent(chatLLM, tools, summarizer, &session, &prefs, selfUserID, tracer, logger)
	agent.Intent = intentLLM

	// 8. Run the REPL until EOF or signal.
	fmt.Println("deskmirror assistant ready. Type a message, or Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := agent.Respond(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(result.Reply)

		if err := sessionStore.Save(session); err != nil {
			logger.Error("save session failed", "error", err)
		}
		if err := prefsStore.Save(prefs); err != nil {
			logger.Error("save preferences failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// openStore constructs the configured backend and runs its schema
// migration. Backend selection mirrors cfg.Database.Backend, spec.md §6.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (deskmirror.Store, func()) {
	switch cfg.Database.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		st := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := st.Init(ctx); err != nil {
			log.Fatalf("init postgres schema: %v", err)
		}
		return st, func() { pool.Close() }
	default:
		st := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			log.Fatalf("init sqlite schema: %v", err)
		}
		return st, func() { st.Close() }
	}
}

// statePath derives a sibling bbolt file name next to the sqlite database
// path, or a bare name when running against postgres.
func statePath(cfg config.Config, name string) string {
	if cfg.Database.Backend == "postgres" || cfg.Database.Path == "" {
		return name
	}
	return cfg.Database.Path + "." + name
}

// selfUserID authenticates against the upstream once at startup so tools
// needing the operator's own ID (unread mentions, reminders) have it. When
// no upstream token is configured the CLI still runs against whatever the
// sync daemon already persisted.
func selfUserID(ctx context.Context, cfg config.Config, logger *slog.Logger) string {
	if cfg.Upstream.Token == "" {
		return ""
	}
	client := workspace.NewHTTPClient(cfg.Upstream.Host, cfg.Upstream.Token)
	id, err := client.AuthTest(ctx)
	if err != nil {
		logger.Warn("auth.test failed, continuing without self user id", "error", err)
		return ""
	}
	return id
}

func wrapTool(t deskmirror.Tool, inst *telemetry.Instruments) deskmirror.Tool {
	if inst == nil {
		return t
	}
	return telemetry.WrapTool(t, inst)
}
