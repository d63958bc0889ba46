// Package seed loads a YAML fixture of dares and redemption tasks into a
// durable store. It is an operator tool: running it against an existing store
// appends new entries with freshly allocated ids.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/H3nryK/Darely/internal/darely"
	"github.com/H3nryK/Darely/internal/darely/state"
	entrypoint "github.com/H3nryK/Darely/internal/platform/cmd"
	"github.com/H3nryK/Darely/internal/stable"
)

// Config holds seed command configuration.
type Config struct {
	DataPath    string `env:"DARELY_DATA_PATH" envDefault:"data/darely.store"`
	FixturePath string `env:"DARELY_SEED_FIXTURE" envDefault:"fixtures/seed.yml"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Path of the persistent backing store")
	fs.StringVar(&cfg.FixturePath, "fixture", cfg.FixturePath, "Path of the YAML fixture to load")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fixture is the YAML document the seed command loads.
type Fixture struct {
	Admins []string `yaml:"admins"`
	Dares  []struct {
		Text       string `yaml:"text"`
		Difficulty string `yaml:"difficulty"`
	} `yaml:"dares"`
	Tasks []struct {
		Description    string `yaml:"description"`
		RequiredStreak uint32 `yaml:"required_streak"`
	} `yaml:"tasks"`
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fixture Fixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return fixture, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	fixture, err := LoadFixture(cfg.FixturePath)
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
	st, err := state.Open(mgr, state.Seed{})
	if err != nil {
		return fmt.Errorf("open durable state: %w", err)
	}

	return Apply(st, fixture, out)
}

// Apply loads a fixture into an open state handle.
func Apply(st *state.State, fixture Fixture, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	for _, raw := range fixture.Admins {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		principal, err := darely.ParsePrincipal(raw)
		if err != nil {
			return fmt.Errorf("invalid admin principal %q: %w", raw, err)
		}
		if err := st.AddAdmin(principal); err != nil {
			return err
		}
	}

	for _, entry := range fixture.Dares {
		difficulty, err := darely.ParseDifficulty(entry.Difficulty)
		if err != nil {
			return fmt.Errorf("dare %q: %w", entry.Text, err)
		}
		id, err := st.NextDareID()
		if err != nil {
			return err
		}
		if err := st.InsertDare(darely.Dare{ID: id, Text: entry.Text, Difficulty: difficulty}); err != nil {
			return err
		}
	}

	for _, entry := range fixture.Tasks {
		id, err := st.NextTaskID()
		if err != nil {
			return err
		}
		task := darely.RedemptionTask{
			ID:             id,
			Description:    entry.Description,
			RequiredStreak: entry.RequiredStreak,
		}
		if err := st.InsertTask(task); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Seeded %d admins, %d dares, %d tasks\n",
		len(fixture.Admins), len(fixture.Dares), len(fixture.Tasks))
	return nil
}
