package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Judge backends accepted by judge.backend.
const (
	JudgeBackendJudge0 = "judge0"
	JudgeBackendDocker = "docker"
)

// Config holds runtime configuration values for the judge service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	EventChannelBase string

	Judge0URL          string
	Judge0AuthToken    string
	Judge0RapidAPIKey  string
	Judge0RapidAPIHost string
	Judge0Timeout      time.Duration
	PollInterval       time.Duration
	PollTimeout        time.Duration

	// JudgeBackend selects the execution backend: "judge0" or "docker".
	JudgeBackend        string
	DockerHost          string
	DockerTimeout       time.Duration
	DockerMemoryMB      int64
	DockerCPUShares     int64
	DockerWorkspaceRoot string
	DockerConcurrency   int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	PersistenceURL   string
	AutosaveInterval time.Duration
	ExamDuration     time.Duration
	ExamResumeTTL    time.Duration
	ExamStreamTick   time.Duration
	BoilerplateTTL   time.Duration

	RunRateLimit  int
	RunRateWindow time.Duration

	// CORSOrigins restricts browser callers; empty allows any origin.
	CORSOrigins []string

	SeedEnabled bool
	SeedToken   string
	SeedOnStart bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "sqlite://gema-judge.db")
	v.SetDefault("events.channel", "gema:judge")
	v.SetDefault("judge0.url", "http://localhost:2358")
	v.SetDefault("judge0.timeout", "15s")
	v.SetDefault("judge0.poll_interval", "1500ms")
	v.SetDefault("judge0.poll_timeout", "60s")
	v.SetDefault("judge.backend", "judge0")
	v.SetDefault("docker.timeout", "5s")
	v.SetDefault("docker.memory_mb", 256)
	v.SetDefault("docker.cpu_shares", 512)
	v.SetDefault("docker.concurrency", 2)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("exam.autosave_interval", "30s")
	v.SetDefault("exam.duration", "10m")
	v.SetDefault("exam.resume_ttl", "24h")
	v.SetDefault("exam.stream_interval", "1s")
	v.SetDefault("boilerplate.cache_ttl", "10m")
	v.SetDefault("run.rate_limit", 10)
	v.SetDefault("run.rate_window", "1m")
	v.SetDefault("seed.on_start", true)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"judge0.timeout",
		"judge0.poll_interval",
		"judge0.poll_timeout",
		"docker.timeout",
		"exam.autosave_interval",
		"exam.duration",
		"exam.resume_ttl",
		"exam.stream_interval",
		"boilerplate.cache_ttl",
		"run.rate_window",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventChannelBase:    v.GetString("events.channel"),
		Judge0URL:           v.GetString("judge0.url"),
		Judge0AuthToken:     v.GetString("judge0.auth_token"),
		Judge0RapidAPIKey:   v.GetString("judge0.rapidapi_key"),
		Judge0RapidAPIHost:  v.GetString("judge0.rapidapi_host"),
		Judge0Timeout:       durations["judge0.timeout"],
		PollInterval:        durations["judge0.poll_interval"],
		PollTimeout:         durations["judge0.poll_timeout"],
		JudgeBackend:        strings.ToLower(strings.TrimSpace(v.GetString("judge.backend"))),
		DockerHost:          v.GetString("docker.host"),
		DockerTimeout:       durations["docker.timeout"],
		DockerMemoryMB:      v.GetInt64("docker.memory_mb"),
		DockerCPUShares:     v.GetInt64("docker.cpu_shares"),
		DockerWorkspaceRoot: v.GetString("docker.workspace_root"),
		DockerConcurrency:   v.GetInt("docker.concurrency"),
		OpenAIAPIKey:        v.GetString("openai.api_key"),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		OpenAIModel:         v.GetString("openai.model"),
		PersistenceURL:      strings.TrimSpace(v.GetString("persistence.url")),
		AutosaveInterval:    durations["exam.autosave_interval"],
		ExamDuration:        durations["exam.duration"],
		ExamResumeTTL:       durations["exam.resume_ttl"],
		ExamStreamTick:      durations["exam.stream_interval"],
		BoilerplateTTL:      durations["boilerplate.cache_ttl"],
		RunRateLimit:        v.GetInt("run.rate_limit"),
		RunRateWindow:       durations["run.rate_window"],
		SeedEnabled:         v.GetBool("seed.enabled"),
		SeedToken:           v.GetString("seed.token"),
		SeedOnStart:         v.GetBool("seed.on_start"),
		CORSOrigins:         splitList(v.GetString("http.cors_origins")),
	}

	switch cfg.JudgeBackend {
	case JudgeBackendJudge0, JudgeBackendDocker:
	default:
		return Config{}, fmt.Errorf("unknown judge backend %q", cfg.JudgeBackend)
	}
	if cfg.JudgeBackend == JudgeBackendJudge0 && strings.TrimSpace(cfg.Judge0URL) == "" {
		return Config{}, fmt.Errorf("judge0 url must be provided")
	}
	if cfg.PollTimeout < cfg.PollInterval {
		return Config{}, fmt.Errorf("judge0 poll timeout must not be shorter than the poll interval")
	}
	if cfg.SeedEnabled && strings.TrimSpace(cfg.SeedToken) == "" {
		return Config{}, fmt.Errorf("seed token must be provided when seeding is enabled")
	}
	if cfg.RunRateLimit <= 0 {
		cfg.RunRateLimit = 10
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
