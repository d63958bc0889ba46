// Package darebot parses bot command flags and starts the game runtime.
package darebot

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/H3nryK/Darely/internal/bot"
	"github.com/H3nryK/Darely/internal/darely"
	"github.com/H3nryK/Darely/internal/darely/service"
	"github.com/H3nryK/Darely/internal/darely/state"
	"github.com/H3nryK/Darely/internal/integration/openai"
	entrypoint "github.com/H3nryK/Darely/internal/platform/cmd"
	"github.com/H3nryK/Darely/internal/stable"
)

// Config holds darebot command configuration.
type Config struct {
	Addr         string   `env:"DARELY_BOT_ADDR" envDefault:":8080"`
	DataPath     string   `env:"DARELY_DATA_PATH" envDefault:"data/darely.store"`
	BotPublicKey string   `env:"DARELY_BOT_PUBLIC_KEY"`
	OpenAIKey    string   `env:"DARELY_OPENAI_KEY"`
	OpenAIModel  string   `env:"DARELY_OPENAI_MODEL"`
	Admins       []string `env:"DARELY_ADMINS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The bot webhook listen address")
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Path of the persistent backing store")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the bot webhook service over the durable store.
func Run(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.BotPublicKey) == "" {
		return fmt.Errorf("DARELY_BOT_PUBLIC_KEY is required")
	}
	admins, err := parseAdmins(cfg.Admins)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DataPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	mem, err := stable.OpenFileMemory(cfg.DataPath)
	if err != nil {
		return err
	}
	defer mem.Close()

	mgr, err := stable.NewManager(mem)
	if err != nil {
		return err
	}
	st, err := state.Open(mgr, state.Seed{
		Admins:       admins,
		BotPublicKey: cfg.BotPublicKey,
		OpenAIKey:    cfg.OpenAIKey,
	})
	if err != nil {
		return fmt.Errorf("open durable state: %w", err)
	}

	generator, err := openai.New(openai.Config{
		Model: cfg.OpenAIModel,
		Key: func() (string, error) {
			config, err := st.Config()
			if err != nil {
				return "", err
			}
			return config.OpenAIKey, nil
		},
	})
	if err != nil {
		return err
	}

	svc := service.New(st, generator)
	server, err := bot.New(bot.Config{Addr: cfg.Addr, Service: svc, State: st})
	if err != nil {
		return err
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDarebot, func(ctx context.Context) error {
		return server.Run(ctx)
	})
}

func parseAdmins(raw []string) ([]darely.Principal, error) {
	var admins []darely.Principal
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		principal, err := darely.ParsePrincipal(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid admin principal %q: %w", entry, err)
		}
		admins = append(admins, principal)
	}
	return admins, nil
}
