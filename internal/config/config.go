package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // default zone must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	"github.com/kalambet/slotbot/internal/calendar"
)

// Calendar backends.
const (
	CalendarMemory = "memory"
	CalendarSQLite = "sqlite"
	CalendarGoogle = "google"
)

// Reasoner backends.
const (
	ReasonerOllama     = "ollama"
	ReasonerOpenRouter = "openrouter"
)

const secretService = "slotbot"

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Calendar CalendarConfig
	Reasoner ReasonerConfig
	Ollama   OllamaConfig
	Proxy    ProxyConfig
	Agent    AgentConfig
	Session  SessionConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type CalendarConfig struct {
	Backend               string
	Slots                 string // comma-separated slot times
	Timezone              string
	GoogleCalendarID      string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	BackendTimeout        string
}

type ReasonerConfig struct {
	Backend string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	Model            string
}

type AgentConfig struct {
	MaxIterations   int
	ReasonerTimeout string
}

type SessionConfig struct {
	TTL string
}

type MetricsConfig struct {
	Enabled bool
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Calendar: CalendarConfig{
			Backend:          CalendarSQLite,
			Slots:            strings.Join(calendar.DefaultSlots, ","),
			Timezone:         "Asia/Kolkata",
			GoogleCalendarID: "primary",
			BackendTimeout:   "5s",
		},
		Reasoner: ReasonerConfig{Backend: ReasonerOllama},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		Proxy: ProxyConfig{
			Model: "openai/gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxIterations:   10,
			ReasonerTimeout: "30s",
		},
		Session: SessionConfig{TTL: "30m"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables and the platform secret store,
// then validates it.
//
// On macOS the backend is UserDefaults (domain: com.slotbot.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/slotbot/config.json
// and secrets fall back to $XDG_DATA_HOME/slotbot/secrets.json.
//
// Environment variables (SLOTBOT_*) override backend values on all platforms.
// Variables from .env never replace ones already set in the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts secret store reads for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Proxy.OpenRouterAPIKey == "" {
		if key, err := kc.Get(secretService, "openrouter_api_key"); err == nil && key != "" {
			cfg.Proxy.OpenRouterAPIKey = key
		}
	}
	if cfg.Calendar.GoogleCredentialsJSON == "" {
		if creds, err := kc.Get(secretService, "google_service_account_json"); err == nil && creds != "" {
			cfg.Calendar.GoogleCredentialsJSON = creds
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error that would prevent startup.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch c.Calendar.Backend {
	case CalendarMemory, CalendarSQLite:
	case CalendarGoogle:
		if c.Calendar.GoogleCredentialsJSON == "" && c.Calendar.GoogleCredentialsFile == "" {
			return fmt.Errorf("missing required config: Google service account credentials. "+
				"Set SLOTBOT_GOOGLE_SERVICE_ACCOUNT_JSON or calendar.google_credentials_file%s", secretHint("google_service_account_json"))
		}
	default:
		return fmt.Errorf("unknown calendar.backend %q (want %s, %s or %s)", c.Calendar.Backend, CalendarMemory, CalendarSQLite, CalendarGoogle)
	}
	switch c.Reasoner.Backend {
	case ReasonerOllama:
	case ReasonerOpenRouter:
		if c.Proxy.OpenRouterAPIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. "+
				"Set it via environment variable SLOTBOT_OPENROUTER_API_KEY%s", secretHint("openrouter_api_key"))
		}
	default:
		return fmt.Errorf("unknown reasoner.backend %q (want %s or %s)", c.Reasoner.Backend, ReasonerOllama, ReasonerOpenRouter)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("invalid calendar.slots: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid calendar.timezone: %w", err)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	for key, v := range map[string]string{
		"calendar.backend_timeout": c.Calendar.BackendTimeout,
		"agent.reasoner_timeout":   c.Agent.ReasonerTimeout,
		"session.ttl":              c.Session.TTL,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
		}
	}
	return nil
}

// Catalog parses the configured slot catalog.
func (c Config) Catalog() (calendar.Catalog, error) {
	return calendar.ParseCatalog(c.Calendar.Slots)
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Calendar.Timezone)
}

// GoogleCredentials returns the service account JSON, reading the
// credentials file when no inline JSON is configured.
func (c Config) GoogleCredentials() ([]byte, error) {
	if c.Calendar.GoogleCredentialsJSON != "" {
		return []byte(c.Calendar.GoogleCredentialsJSON), nil
	}
	if c.Calendar.GoogleCredentialsFile == "" {
		return nil, errors.New("no Google credentials configured")
	}
	return os.ReadFile(c.Calendar.GoogleCredentialsFile)
}

func (c CalendarConfig) Timeout() time.Duration { return mustDuration(c.BackendTimeout) }
func (c AgentConfig) Timeout() time.Duration    { return mustDuration(c.ReasonerTimeout) }
func (c SessionConfig) Duration() time.Duration { return mustDuration(c.TTL) }

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
