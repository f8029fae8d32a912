package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SLOTBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "SLOTBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SLOTBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "calendar.backend", typ: kString, env: "SLOTBOT_CALENDAR_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Calendar.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.Backend },
	},
	{
		key: "calendar.slots", typ: kString, env: "SLOTBOT_CALENDAR_SLOTS",
		apply:   func(cfg *Config, v any) { cfg.Calendar.Slots = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.Slots },
	},
	{
		key: "calendar.timezone", typ: kString, env: "SLOTBOT_CALENDAR_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Calendar.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.Timezone },
	},
	{
		key: "calendar.google_calendar_id", typ: kString, env: "SLOTBOT_GOOGLE_CALENDAR_ID",
		apply:   func(cfg *Config, v any) { cfg.Calendar.GoogleCalendarID = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.GoogleCalendarID },
	},
	{
		key: "calendar.google_credentials_file", typ: kString, env: "SLOTBOT_GOOGLE_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Calendar.GoogleCredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.GoogleCredentialsFile },
	},
	{
		key: "calendar.google_credentials_json", typ: kString, env: "SLOTBOT_GOOGLE_SERVICE_ACCOUNT_JSON",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Calendar.GoogleCredentialsJSON = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.GoogleCredentialsJSON },
	},
	{
		key: "calendar.backend_timeout", typ: kString, env: "SLOTBOT_CALENDAR_BACKEND_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Calendar.BackendTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.BackendTimeout },
	},
	{
		key: "reasoner.backend", typ: kString, env: "SLOTBOT_REASONER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Reasoner.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoner.Backend },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SLOTBOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "SLOTBOT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "SLOTBOT_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.model", typ: kString, env: "SLOTBOT_PROXY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Model },
	},
	{
		key: "agent.max_iterations", typ: kInt, env: "SLOTBOT_AGENT_MAX_ITERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxIterations = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxIterations },
	},
	{
		key: "agent.reasoner_timeout", typ: kString, env: "SLOTBOT_AGENT_REASONER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agent.ReasonerTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.ReasonerTimeout },
	},
	{
		key: "session.ttl", typ: kString, env: "SLOTBOT_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "SLOTBOT_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
