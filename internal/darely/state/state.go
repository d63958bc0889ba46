// Package state aggregates the live durable collections behind a single
// process-wide handle. The handle is constructed once at startup and threaded
// explicitly into every operation; restarts re-derive it from the same
// regions, so prior data is picked up automatically.
//
// The handle is safe for concurrent use: a single mutex guards every
// collection access, and MutateConfig holds it across the whole
// read-clone-reinsert sequence so counter allocation is atomic.
package state

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/H3nryK/Darely/internal/darely"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
	"github.com/H3nryK/Darely/internal/stable"
)

// configKey is the sentinel key of the config singleton in its map.
const configKey uint64 = 0

// Seed carries the deploy-time inputs: the initial admin set and the two
// external credentials. On a restart only the credentials are applied; the
// stored admin list and counters win.
type Seed struct {
	Admins       []darely.Principal
	BotPublicKey string
	OpenAIKey    string
}

// State owns every durable collection. No other component holds a reference
// to the backing store.
type State struct {
	mu      sync.Mutex
	users   *stable.Map[darely.Principal, darely.UserProfile]
	dares   *stable.Map[uint64, darely.Dare]
	tasks   *stable.Map[uint64, darely.RedemptionTask]
	config  *stable.Map[uint64, darely.Config]
	journal *stable.Vector[darely.Dare]
}

// Open attaches the state to the backing store, seeding the config on a first
// ever start and reattaching with refreshed credentials otherwise. Corruption
// detected here aborts startup.
func Open(mgr *stable.Manager, seed Seed) (*State, error) {
	s, err := attach(mgr)
	if err != nil {
		return nil, err
	}
	_, had, err := s.config.Get(configKey)
	if err != nil {
		return nil, wrapStorage("probe config", err)
	}
	if !had {
		return s, s.init(seed)
	}
	return s, s.reattach(seed)
}

// Init attaches every collection and writes the seed config only when none
// exists yet. An existing config is never overwritten.
func Init(mgr *stable.Manager, seed Seed) (*State, error) {
	s, err := attach(mgr)
	if err != nil {
		return nil, err
	}
	return s, s.init(seed)
}

// Reattach re-derives every collection handle after a restart with preserved
// storage, keeping counters and admins and refreshing only the credentials.
func Reattach(mgr *stable.Manager, upd Seed) (*State, error) {
	s, err := attach(mgr)
	if err != nil {
		return nil, err
	}
	return s, s.reattach(upd)
}

func attach(mgr *stable.Manager) (*State, error) {
	userRegion, err := mgr.GetRegion(darely.RegionUsers)
	if err != nil {
		return nil, err
	}
	dareRegion, err := mgr.GetRegion(darely.RegionDares)
	if err != nil {
		return nil, err
	}
	taskRegion, err := mgr.GetRegion(darely.RegionTasks)
	if err != nil {
		return nil, err
	}
	configRegion, err := mgr.GetRegion(darely.RegionConfig)
	if err != nil {
		return nil, err
	}
	journalRegion, err := mgr.GetRegion(darely.RegionJournal)
	if err != nil {
		return nil, err
	}

	users, err := stable.OpenMap(userRegion, darely.PrincipalCodec{}, darely.ProfileCodec())
	if err != nil {
		return nil, wrapStorage("open user map", err)
	}
	dares, err := stable.OpenMap(dareRegion, stable.U64Codec{}, darely.DareCodec())
	if err != nil {
		return nil, wrapStorage("open dare map", err)
	}
	tasks, err := stable.OpenMap(taskRegion, stable.U64Codec{}, darely.TaskCodec())
	if err != nil {
		return nil, wrapStorage("open task map", err)
	}
	config, err := stable.OpenMap(configRegion, stable.U64Codec{}, darely.ConfigCodec())
	if err != nil {
		return nil, wrapStorage("open config map", err)
	}
	journal, err := stable.OpenVector(journalRegion, darely.JournalDareCodec())
	if err != nil {
		return nil, wrapStorage("open dare journal", err)
	}

	return &State{
		users:   users,
		dares:   dares,
		tasks:   tasks,
		config:  config,
		journal: journal,
	}, nil
}

func (s *State) init(seed Seed) error {
	_, had, err := s.config.Get(configKey)
	if err != nil {
		return wrapStorage("probe config", err)
	}
	if had {
		return nil
	}
	initial := darely.Config{
		Admins:       append([]darely.Principal(nil), seed.Admins...),
		NextDareID:   1,
		NextTaskID:   1,
		BotPublicKey: seed.BotPublicKey,
		OpenAIKey:    seed.OpenAIKey,
	}
	if _, _, err := s.config.Insert(configKey, initial); err != nil {
		return wrapStorage("seed config", err)
	}
	return nil
}

func (s *State) reattach(upd Seed) error {
	config, had, err := s.config.Get(configKey)
	if err != nil {
		return wrapStorage("read config", err)
	}
	if !had {
		// A preserved store without a config singleton can only come from
		// a deployment older than the config region. Rebuild it, resuming
		// the counters past the highest stored ids.
		log.Printf("config missing after restart, rebuilding")
		config = darely.Config{
			Admins:     append([]darely.Principal(nil), upd.Admins...),
			NextDareID: uint64(s.dares.Len()) + 1,
			NextTaskID: uint64(s.tasks.Len()) + 1,
		}
	}
	config = config.Clone()
	config.BotPublicKey = upd.BotPublicKey
	config.OpenAIKey = upd.OpenAIKey
	if _, _, err := s.config.Insert(configKey, config); err != nil {
		return wrapStorage("update config", err)
	}
	return nil
}

// configLocked reads the singleton. Callers hold s.mu.
func (s *State) configLocked() (darely.Config, error) {
	config, had, err := s.config.Get(configKey)
	if err != nil {
		return darely.Config{}, wrapStorage("read config", err)
	}
	if !had {
		return darely.Config{}, apperrors.New(apperrors.CodeStorageCorrupted, "config record is missing")
	}
	return config, nil
}

// Config returns a copy of the singleton config record.
func (s *State) Config() (darely.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configLocked()
}

// MutateConfig applies fn to a clone of the config and reinserts the clone.
// A failure inside fn leaves the stored record untouched. The lock is held
// across the whole sequence, so fn must not call back into the state.
func (s *State) MutateConfig(fn func(*darely.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	config, err := s.configLocked()
	if err != nil {
		return err
	}
	clone := config.Clone()
	if err := fn(&clone); err != nil {
		return err
	}
	if _, _, err := s.config.Insert(configKey, clone); err != nil {
		return wrapStorage("write config", err)
	}
	return nil
}

// NextDareID allocates the next dare id. The increment happens inside a
// single config mutation, so ids are never repeated.
func (s *State) NextDareID() (uint64, error) {
	var id uint64
	err := s.MutateConfig(func(config *darely.Config) error {
		id = config.NextDareID
		config.NextDareID++
		return nil
	})
	return id, err
}

// NextTaskID allocates the next redemption task id.
func (s *State) NextTaskID() (uint64, error) {
	var id uint64
	err := s.MutateConfig(func(config *darely.Config) error {
		id = config.NextTaskID
		config.NextTaskID++
		return nil
	})
	return id, err
}

// IsAdmin reports whether the principal is in the stored admin set.
func (s *State) IsAdmin(principal darely.Principal) (bool, error) {
	config, err := s.Config()
	if err != nil {
		return false, err
	}
	return config.HasAdmin(principal), nil
}

// AddAdmin grants admin rights to the principal.
func (s *State) AddAdmin(principal darely.Principal) error {
	return s.MutateConfig(func(config *darely.Config) error {
		if config.HasAdmin(principal) {
			return apperrors.New(apperrors.CodeAlreadyExists, "principal is already an admin")
		}
		config.Admins = append(config.Admins, principal)
		return nil
	})
}

// RemoveAdmin revokes admin rights from the principal.
func (s *State) RemoveAdmin(principal darely.Principal) error {
	return s.MutateConfig(func(config *darely.Config) error {
		for i, admin := range config.Admins {
			if admin == principal {
				config.Admins = append(config.Admins[:i], config.Admins[i+1:]...)
				return nil
			}
		}
		return apperrors.New(apperrors.CodeNotFound, "principal is not an admin")
	})
}

// User returns the profile stored under the principal.
func (s *State) User(principal darely.Principal) (darely.UserProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, had, err := s.users.Get(principal)
	if err != nil {
		return darely.UserProfile{}, false, wrapStorage("read profile", err)
	}
	return profile, had, nil
}

// InsertUser upserts the profile under the principal.
func (s *State) InsertUser(principal darely.Principal, profile darely.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.users.Insert(principal, profile); err != nil {
		return wrapStorage("write profile", err)
	}
	return nil
}

// Users walks every profile in ascending principal order.
func (s *State) Users(fn func(darely.Principal, darely.UserProfile) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.users.Iterate(fn); err != nil {
		return wrapStorage("iterate profiles", err)
	}
	return nil
}

// UserCount returns the number of registered players.
func (s *State) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.Len()
}

// Dare returns the dare stored under the id.
func (s *State) Dare(id uint64) (darely.Dare, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dare, had, err := s.dares.Get(id)
	if err != nil {
		return darely.Dare{}, false, wrapStorage("read dare", err)
	}
	return dare, had, nil
}

// InsertDare upserts the dare under its id.
func (s *State) InsertDare(dare darely.Dare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.dares.Insert(dare.ID, dare); err != nil {
		return wrapStorage("write dare", err)
	}
	return nil
}

// FilterDares collects the dares matching pred in id order.
func (s *State) FilterDares(pred func(darely.Dare) bool) ([]darely.Dare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []darely.Dare
	err := s.dares.Iterate(func(_ uint64, dare darely.Dare) bool {
		if pred == nil || pred(dare) {
			matched = append(matched, dare)
		}
		return true
	})
	if err != nil {
		return nil, wrapStorage("iterate dares", err)
	}
	return matched, nil
}

// Task returns the redemption task stored under the id.
func (s *State) Task(id uint64) (darely.RedemptionTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, had, err := s.tasks.Get(id)
	if err != nil {
		return darely.RedemptionTask{}, false, wrapStorage("read task", err)
	}
	return task, had, nil
}

// InsertTask upserts the redemption task under its id.
func (s *State) InsertTask(task darely.RedemptionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.tasks.Insert(task.ID, task); err != nil {
		return wrapStorage("write task", err)
	}
	return nil
}

// FilterTasks collects the redemption tasks matching pred in id order.
func (s *State) FilterTasks(pred func(darely.RedemptionTask) bool) ([]darely.RedemptionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []darely.RedemptionTask
	err := s.tasks.Iterate(func(_ uint64, task darely.RedemptionTask) bool {
		if pred == nil || pred(task) {
			matched = append(matched, task)
		}
		return true
	})
	if err != nil {
		return nil, wrapStorage("iterate tasks", err)
	}
	return matched, nil
}

// AppendJournal records a generated dare in the append-only journal and
// returns its position.
func (s *State) AppendJournal(dare darely.Dare) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.journal.Push(dare)
	if err != nil {
		return 0, wrapStorage("append journal", err)
	}
	return index, nil
}

// Journal walks the generated-dare journal in append order.
func (s *State) Journal(fn func(uint64, darely.Dare) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.journal.Iterate(fn); err != nil {
		return wrapStorage("iterate journal", err)
	}
	return nil
}

// JournalLen returns the number of journaled dares.
func (s *State) JournalLen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Len()
}

// wrapStorage translates stable-layer failures into domain error codes.
func wrapStorage(op string, err error) error {
	code := apperrors.CodeUnknown
	switch {
	case errors.Is(err, stable.ErrSizeBoundExceeded):
		code = apperrors.CodeSizeBoundExceeded
	case errors.Is(err, stable.ErrCorrupted):
		code = apperrors.CodeStorageCorrupted
	case errors.Is(err, stable.ErrRegionExhausted):
		code = apperrors.CodeRegionExhausted
	}
	return apperrors.Wrap(code, fmt.Sprintf("%s: %v", op, err), err)
}
