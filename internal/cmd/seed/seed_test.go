package seed

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/H3nryK/Darely/internal/darely"
	"github.com/H3nryK/Darely/internal/darely/state"
	"github.com/H3nryK/Darely/internal/stable"
)

const fixtureYAML = `admins:
  - chief
dares:
  - text: "Post a haiku about your day"
    difficulty: easy
  - text: "Record yourself singing a chorus"
    difficulty: hard
tasks:
  - description: "Pick the next community event theme"
    required_streak: 5
`

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DataPath != "data/darely.store" {
		t.Fatalf("unexpected default data path %q", cfg.DataPath)
	}
	if cfg.FixturePath != "fixtures/seed.yml" {
		t.Fatalf("unexpected default fixture path %q", cfg.FixturePath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-data", "/tmp/store", "-fixture", "custom.yml"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DataPath != "/tmp/store" {
		t.Fatalf("expected data path override, got %q", cfg.DataPath)
	}
	if cfg.FixturePath != "custom.yml" {
		t.Fatalf("expected fixture path override, got %q", cfg.FixturePath)
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fixture, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if len(fixture.Dares) != 2 || len(fixture.Tasks) != 1 || len(fixture.Admins) != 1 {
		t.Fatalf("unexpected fixture shape: %+v", fixture)
	}
	if fixture.Tasks[0].RequiredStreak != 5 {
		t.Fatalf("expected required streak 5, got %d", fixture.Tasks[0].RequiredStreak)
	}
}

func TestApplyAllocatesSequentialIDs(t *testing.T) {
	mgr, err := stable.NewManager(stable.NewHeapMemory())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	st, err := state.Open(mgr, state.Seed{})
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	fixture, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	var out bytes.Buffer
	if err := Apply(st, fixture, &out); err != nil {
		t.Fatalf("apply fixture: %v", err)
	}
	if !strings.Contains(out.String(), "2 dares, 1 tasks") {
		t.Fatalf("unexpected summary: %q", out.String())
	}

	dare, had, err := st.Dare(1)
	if err != nil || !had {
		t.Fatalf("expected dare 1 (had=%v): %v", had, err)
	}
	if dare.Difficulty != darely.DifficultyEasy {
		t.Fatalf("expected easy dare first, got %v", dare.Difficulty)
	}
	if _, had, err = st.Dare(2); err != nil || !had {
		t.Fatalf("expected dare 2 (had=%v): %v", had, err)
	}
	task, had, err := st.Task(1)
	if err != nil || !had {
		t.Fatalf("expected task 1 (had=%v): %v", had, err)
	}
	if task.RequiredStreak != 5 {
		t.Fatalf("expected required streak 5, got %d", task.RequiredStreak)
	}
	isAdmin, err := st.IsAdmin("chief")
	if err != nil || !isAdmin {
		t.Fatalf("expected chief to be admin (err=%v)", err)
	}
}

func TestApplyRejectsBadDifficulty(t *testing.T) {
	mgr, err := stable.NewManager(stable.NewHeapMemory())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	st, err := state.Open(mgr, state.Seed{})
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	var fixture Fixture
	fixture.Dares = append(fixture.Dares, struct {
		Text       string `yaml:"text"`
		Difficulty string `yaml:"difficulty"`
	}{Text: "Broken", Difficulty: "impossible"})

	if err := Apply(st, fixture, nil); err == nil {
		t.Fatal("expected error for unknown difficulty")
	}
}
