package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/pooler/internal/config"
	"github.com/crimson-sun/pooler/internal/hub"
	"github.com/crimson-sun/pooler/internal/logging"
	"github.com/crimson-sun/pooler/internal/pooling"
)

// AppContext holds what every command needs after startup.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
	Store  *hub.Store
}

// NewAppContext loads configuration, applies global flag overrides and
// installs the logger. Logs always go to stderr so they never mix with
// records on stdout.
func NewAppContext(cmd *cli.Command) (*AppContext, error) {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Init(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	client := hub.New(
		hub.WithEndpoint(cfg.Hub.Endpoint),
		hub.WithToken(cfg.Hub.Token),
		hub.WithCacheDir(cfg.Hub.CacheDir),
		hub.WithRevision(cfg.Hub.Revision),
		hub.WithRetries(cfg.Hub.Retries),
		hub.WithTimeout(cfg.Hub.Timeout),
	)
	return &AppContext{Config: cfg, Logger: logger, Store: hub.NewStore(client)}, nil
}

// Factory returns a pooling factory backed by the hub store.
func (a *AppContext) Factory() *pooling.Factory {
	return pooling.NewFactory(a.Store, pooling.WithLogger(a.Logger))
}

// poolingFlags are the per-command flags that feed a pooling configuration.
func poolingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "method",
			Usage: "pooling method: meanpooling, clspooling or pooling (raw); looked up from the model when unset",
		},
		&cli.StringFlag{
			Name:  "maxlength",
			Usage: "token limit: a number, or auto to read it from the model",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "execution device: cpu or cuda[:N] (default from POOLER_DEVICE)",
		},
		&cli.StringFlag{
			Name:  "tokenizer",
			Usage: "vocab.txt path or model to take the vocabulary from",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML or JSON file with method, path, device, tokenizer, maxlength and modelargs",
		},
		&cli.StringSliceFlag{
			Name:  "arg",
			Usage: "encoder argument as key=value (repeatable)",
		},
	}
}

// poolingConfig builds the pooling configuration for model from the
// --config file, if any, overlaid with explicit flags.
func poolingConfig(ctx context.Context, cmd *cli.Command, a *AppContext, model string) (pooling.Config, error) {
	m, err := readConfigFile(cmd.String("config"))
	if err != nil {
		return pooling.Config{}, err
	}
	if model != "" {
		m["path"] = model
	}
	if _, ok := m["path"]; !ok {
		return pooling.Config{}, fmt.Errorf("no model given")
	}
	if _, ok := m["device"]; !ok {
		m["device"] = a.Config.Engine.Device
	}
	for _, name := range []string{"method", "maxlength", "device", "tokenizer"} {
		if cmd.IsSet(name) {
			m[name] = cmd.String(name)
		}
	}
	if args := cmd.StringSlice("arg"); len(args) > 0 {
		ma, _ := m["modelargs"].(map[string]any)
		if ma == nil {
			ma = make(map[string]any, len(args))
		}
		if err := parseArgs(args, ma); err != nil {
			return pooling.Config{}, err
		}
		m["modelargs"] = ma
	}

	cfg, err := pooling.DecodeConfig(m)
	if err != nil {
		return pooling.Config{}, err
	}
	a.Logger.DebugContext(ctx, "pooling config",
		"path", cfg.Path.String(),
		"method", cfg.Method,
		"maxlength", cfg.MaxLength.String(),
	)
	return cfg, nil
}

// readConfigFile decodes a YAML (or JSON) mapping. An empty path yields an
// empty mapping.
func readConfigFile(path string) (map[string]any, error) {
	m := make(map[string]any)
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

// parseArgs adds key=value pairs to m. Values are kept as strings; the
// encoder decodes them weakly.
func parseArgs(args []string, m map[string]any) error {
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --arg %q: want key=value", kv)
		}
		m[k] = v
	}
	return nil
}
