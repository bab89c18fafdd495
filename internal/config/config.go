package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr           string
		PublicOrigin   string   `mapstructure:"public_origin"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		Mode           string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Auth struct {
		JWTSecret       string        `mapstructure:"jwt_secret"`
		SecretFile      string        `mapstructure:"secret_file"`
		EphemeralSecret bool          `mapstructure:"ephemeral_secret"`
		TokenTTL        time.Duration `mapstructure:"token_ttl"`
		ResetTokenTTL   time.Duration `mapstructure:"reset_token_ttl"`
	}
	RateLimit struct {
		Login  LimitRule
		Forgot LimitRule
	} `mapstructure:"ratelimit"`
	Email struct {
		APIKey   string `mapstructure:"api_key"`
		Endpoint string
		From     string
	}
	Mirror struct {
		Enabled       bool
		Bucket        string
		Folder        string
		Region        string
		Endpoint      string
		Workers       int
		QueueSize     int           `mapstructure:"queue_size"`
		RatePerSecond float64       `mapstructure:"rate_per_second"`
		JobTimeout    time.Duration `mapstructure:"job_timeout"`
	}
	AWS struct {
		Profile string
	}
	Assistant struct {
		Endpoint     string
		APIKey       string `mapstructure:"api_key"`
		Model        string
		SystemPrompt string `mapstructure:"system_prompt"`
		MaxTokens    int    `mapstructure:"max_tokens"`
	}
	Log struct {
		Level string
	}
}

// LimitRule is a fixed-window request budget.
type LimitRule struct {
	Limit  int
	Window time.Duration
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("TWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:3001")
	v.SetDefault("server.public_origin", "http://localhost:5173")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/twin.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.secret_file", "")
	v.SetDefault("auth.ephemeral_secret", false)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.reset_token_ttl", "1h")
	v.SetDefault("ratelimit.login.limit", 10)
	v.SetDefault("ratelimit.login.window", "15m")
	v.SetDefault("ratelimit.forgot.limit", 5)
	v.SetDefault("ratelimit.forgot.window", "1h")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.endpoint", "https://api.resend.com/emails")
	v.SetDefault("email.from", "Advisor Twin <noreply@example.com>")
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.folder", "Chat Transcripts")
	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.workers", 2)
	v.SetDefault("mirror.queue_size", 64)
	v.SetDefault("mirror.rate_per_second", 5)
	v.SetDefault("mirror.job_timeout", "30s")
	v.SetDefault("aws.profile", "")
	v.SetDefault("assistant.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", "gpt-4o-mini")
	v.SetDefault("assistant.system_prompt", "You are the digital twin of a business advisor. Answer concisely and practically.")
	v.SetDefault("assistant.max_tokens", 600)
	v.SetDefault("log.level", "info")
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if cfg.Mirror.Enabled && strings.TrimSpace(cfg.Mirror.Bucket) == "" {
		return Config{}, fmt.Errorf("mirror.bucket is required when the mirror is enabled")
	}
	if cfg.Database.Driver == "postgres" && strings.TrimSpace(cfg.Database.DSN) == "" {
		return Config{}, fmt.Errorf("database.dsn is required for postgres")
	}
	return cfg, nil
}

// splitList flattens comma separated entries, which is how list values arrive from env vars.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
