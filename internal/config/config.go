package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/crimson-sun/pooler/internal/hub"
)

// Config holds all pooler configuration.
type Config struct {
	Hub       HubConfig
	Engine    EngineConfig
	Output    OutputConfig
	LogLevel  string
	LogFormat string // "text" or "json"
}

// HubConfig holds model hub settings.
type HubConfig struct {
	Endpoint string
	Token    string
	CacheDir string
	Revision string
	// Retries applies to 429 and 5xx responses only; absent files are
	// never retried.
	Retries int
	Timeout time.Duration
}

// EngineConfig holds encoder runtime settings.
type EngineConfig struct {
	Device         string
	LibraryPath    string
	IntraOpThreads int
	InterOpThreads int
}

// OutputConfig holds embedding output settings.
type OutputConfig struct {
	Path   string // empty means stdout
	Pretty bool
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults. A missing .env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	return Config{
		Hub: HubConfig{
			Endpoint: getenv("POOLER_HUB_ENDPOINT", getenv("HF_ENDPOINT", hub.DefaultEndpoint)),
			Token:    getenv("POOLER_HUB_TOKEN", os.Getenv("HF_TOKEN")),
			CacheDir: getenv("POOLER_CACHE_DIR", hub.DefaultCacheDir()),
			Revision: getenv("POOLER_HUB_REVISION", hub.DefaultRevision),
			Retries:  getenvInt("POOLER_HUB_RETRIES", 0),
			Timeout:  getenvDuration("POOLER_HUB_TIMEOUT", 5*time.Minute),
		},
		Engine: EngineConfig{
			Device:         getenv("POOLER_DEVICE", "cpu"),
			LibraryPath:    os.Getenv("POOLER_ORT_LIBRARY"),
			IntraOpThreads: getenvInt("POOLER_INTRA_OP_THREADS", 4),
			InterOpThreads: getenvInt("POOLER_INTER_OP_THREADS", 1),
		},
		Output: OutputConfig{
			Path:   os.Getenv("POOLER_OUTPUT"),
			Pretty: getenvBool("POOLER_OUTPUT_PRETTY", false),
		},
		LogLevel:  getenv("POOLER_LOG_LEVEL", "info"),
		LogFormat: getenv("POOLER_LOG_FORMAT", "text"),
	}, nil
}

// Validate checks the configuration for errors. Returns all problems found.
func (c Config) Validate() error {
	var errs []error

	if c.Hub.Endpoint == "" {
		errs = append(errs, errors.New("hub endpoint must not be empty"))
	} else if !strings.HasPrefix(c.Hub.Endpoint, "http://") && !strings.HasPrefix(c.Hub.Endpoint, "https://") {
		errs = append(errs, fmt.Errorf("hub endpoint %q must be an http(s) URL", c.Hub.Endpoint))
	}
	if c.Hub.Retries < 0 {
		errs = append(errs, fmt.Errorf("hub retries must be >= 0, got %d", c.Hub.Retries))
	}
	if c.Hub.Timeout < 0 {
		errs = append(errs, fmt.Errorf("hub timeout must be >= 0, got %v", c.Hub.Timeout))
	}
	if c.Engine.IntraOpThreads < 0 || c.Engine.InterOpThreads < 0 {
		errs = append(errs, fmt.Errorf("thread counts must be >= 0, got intra=%d inter=%d",
			c.Engine.IntraOpThreads, c.Engine.InterOpThreads))
	}
	if c.Engine.LibraryPath != "" {
		if _, err := os.Stat(c.Engine.LibraryPath); err != nil {
			errs = append(errs, fmt.Errorf("onnxruntime library not found: %s", c.Engine.LibraryPath))
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getenvDuration accepts Go durations ("30s") or whole seconds ("30").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
