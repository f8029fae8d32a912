package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/slotbot/internal/api"
	"github.com/kalambet/slotbot/internal/assistant"
	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/calendar/gcal"
	"github.com/kalambet/slotbot/internal/config"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/engine"
	"github.com/kalambet/slotbot/internal/metrics"
	"github.com/kalambet/slotbot/internal/reasoner"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/session"
	"github.com/kalambet/slotbot/internal/storage"
	"github.com/kalambet/slotbot/internal/timeparse"
)

const janitorInterval = time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the slotbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(stdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running slotbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slotbot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", true, "serve MCP over stdin/stdout alongside HTTP")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "slotbot.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openCalendar builds the calendar backend selected by cfg. The SQLite
// backend shares store with the interaction log.
func openCalendar(ctx context.Context, cfg config.Config, store *storage.Store, catalog calendar.Catalog, loc *time.Location) (calendar.Store, error) {
	switch cfg.Calendar.Backend {
	case config.CalendarMemory:
		return calendar.NewMemoryStore(catalog), nil
	case config.CalendarSQLite:
		return store.Calendar(catalog), nil
	case config.CalendarGoogle:
		creds, err := cfg.GoogleCredentials()
		if err != nil {
			return nil, fmt.Errorf("reading Google credentials: %w", err)
		}
		gs, err := gcal.New(ctx, creds, gcal.Options{
			CalendarID: cfg.Calendar.GoogleCalendarID,
			Location:   loc,
			Timeout:    cfg.Calendar.Timeout(),
			Catalog:    catalog,
		})
		if err != nil {
			return nil, err
		}
		return gs, nil
	default:
		return nil, fmt.Errorf("unknown calendar backend %q", cfg.Calendar.Backend)
	}
}

// reasonerModel returns the model name used by the configured reasoner.
func reasonerModel(cfg config.Config) string {
	if cfg.Reasoner.Backend == config.ReasonerOpenRouter {
		return cfg.Proxy.Model
	}
	return cfg.Ollama.Model
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "slotbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("slotbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("slotbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Validate has already accepted both.
	loc, _ := cfg.Location()
	catalog, _ := cfg.Catalog()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	cal, err := openCalendar(ctx, cfg, store, catalog, loc)
	if err != nil {
		return fmt.Errorf("opening calendar: %w", err)
	}
	slog.Info("calendar backend ready", "backend", cfg.Calendar.Backend, "zone", loc.String(), "slots", catalog.Slots())

	eng, err := engine.Detect(engine.DetectConfig{
		Backend:          cfg.Reasoner.Backend,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OpenRouterAPIKey: cfg.Proxy.OpenRouterAPIKey,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	model := reasonerModel(cfg)
	if err := engine.EnsureReady(ctx, eng, model, os.Stderr); err != nil {
		return err
	}

	norm := timeparse.New(loc)
	reg := registry.New()
	exec := dispatch.NewExecutor(reg, norm, cal, cfg.Calendar.Timeout())

	opts := dispatch.Options{
		MaxIterations:   cfg.Agent.MaxIterations,
		ReasonerTimeout: cfg.Agent.Timeout(),
		Logger:          slog.Default(),
	}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		opts.Recorder = collector
	}
	loop := dispatch.NewLoop(reasoner.New(eng, model, reg, norm, catalog), exec, opts)

	sessions := session.NewManager(cfg.Session.Duration())
	svc := assistant.New(loop, sessions, store)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Assistant:    svc,
			Executor:     exec,
			Interactions: store,
			Metrics:      collector,
			Token:        apiToken,
			Location:     loc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("slotbot listening", "addr", addr, "reasoner", eng.Name(), "model", model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sessions.RunJanitor(gctx, janitorInterval)
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Executor:     exec,
			Assistant:    svc,
			Interactions: store,
			Version:      version,
		})
		g.Go(func() error {
			// A closed stdin ends MCP only; HTTP keeps serving.
			if err := server.NewStdioServer(mcpSrv).Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("slotbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop slotbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to slotbot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Reasoner", "%s (%s)", cfg.Reasoner.Backend, reasonerModel(cfg))
	if cfg.Reasoner.Backend == config.ReasonerOllama {
		if r, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			r.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}

	printStatus("Calendar", "%s, %s, slots %s", cfg.Calendar.Backend, cfg.Calendar.Timezone, cfg.Calendar.Slots)

	if running {
		if token, err := config.GetAPIToken(config.NewKeychain()); err == nil {
			if r, err := apiGet(client, serverURL+"/interactions?limit=100", token); err == nil {
				var interactions []json.RawMessage
				if json.NewDecoder(r.Body).Decode(&interactions) == nil {
					printStatus("Interactions", "%s", countLabel(len(interactions), 100))
				}
				r.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
