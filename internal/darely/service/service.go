// Package service implements the game operations on top of the durable
// state. A mutex serializes operations so each runs to completion before the
// next starts; the one exception is dare generation, which releases the lock
// across the outbound call and re-validates the profile afterwards. No
// profile is ever checked out across that boundary.
package service

import (
	"context"
	"log"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/H3nryK/Darely/internal/darely"
	"github.com/H3nryK/Darely/internal/darely/state"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

// Text limits carried over from the command schema.
const (
	MinDareTextLen = 5
	MaxDareTextLen = 500
	MaxProofLen    = 1000
)

const defaultLeaderboardSize = 10

// DareGenerator produces dare text for a difficulty tier. Implementations
// perform the one suspending external call of the system.
type DareGenerator interface {
	GenerateDare(ctx context.Context, difficulty darely.Difficulty) (string, error)
}

// GeneratorFunc adapts a function to the DareGenerator interface.
type GeneratorFunc func(ctx context.Context, difficulty darely.Difficulty) (string, error)

// GenerateDare calls the wrapped function.
func (f GeneratorFunc) GenerateDare(ctx context.Context, difficulty darely.Difficulty) (string, error) {
	return f(ctx, difficulty)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPicker overrides the random index source used for dare and task
// selection.
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) { s.pick = pick }
}

// Service executes game operations against the durable state.
type Service struct {
	mu        sync.Mutex
	state     *state.State
	generator DareGenerator
	now       func() time.Time
	pick      func(n int) int
}

// New builds a Service over the state handle. The generator may be nil, in
// which case dares come only from the stored collection.
func New(st *state.State, generator DareGenerator, opts ...Option) *Service {
	s := &Service{
		state:     st,
		generator: generator,
		now:       time.Now,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a zero-state profile for the principal.
func (s *Service) Register(ctx context.Context, principal darely.Principal) (darely.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, had, err := s.state.User(principal)
	if err != nil {
		return darely.UserProfile{}, err
	}
	if had {
		return darely.UserProfile{}, apperrors.New(apperrors.CodeAlreadyExists, "you are already registered")
	}
	profile := darely.UserProfile{Principal: principal}
	if err := s.state.InsertUser(principal, profile); err != nil {
		return darely.UserProfile{}, err
	}
	return profile, nil
}

// Profile returns the principal's profile.
func (s *Service) Profile(ctx context.Context, principal darely.Principal) (darely.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, had, err := s.state.User(principal)
	if err != nil {
		return darely.UserProfile{}, err
	}
	if !had {
		return darely.UserProfile{}, errNotRegistered()
	}
	return profile, nil
}

// DareAssignment is the outcome of RequestDare.
type DareAssignment struct {
	Dare darely.Dare
	// Generated reports whether the dare came from the text generator
	// rather than the stored collection.
	Generated bool
}

// RequestDare assigns a new dare to the principal. The text is produced by
// the generator when one is configured and reachable; otherwise a stored dare
// matching the requested difficulty is picked at random. Between the
// pre-checks and the assignment the operation may suspend on the outbound
// call, so the profile is re-validated after the call returns.
func (s *Service) RequestDare(ctx context.Context, principal darely.Principal, difficulty *darely.Difficulty) (DareAssignment, error) {
	s.mu.Lock()
	profile, had, err := s.state.User(principal)
	if err != nil {
		s.mu.Unlock()
		return DareAssignment{}, err
	}
	if !had {
		s.mu.Unlock()
		return DareAssignment{}, errNotRegistered()
	}
	if profile.ActiveDareID != nil {
		s.mu.Unlock()
		return DareAssignment{}, errActiveDare()
	}
	tier := s.chooseTier(difficulty)
	s.mu.Unlock()

	// The outbound call suspends; other operations may run meanwhile.
	text, genErr := s.callGenerator(ctx, tier)

	s.mu.Lock()
	defer s.mu.Unlock()
	var assignment DareAssignment
	if genErr == nil {
		assignment, err = s.persistGenerated(tier, text)
		if err != nil {
			return DareAssignment{}, err
		}
	} else {
		if s.generator != nil {
			log.Printf("dare generation failed, falling back to stored dares: %v", genErr)
		}
		assignment, err = s.storedDare(difficulty)
		if err != nil {
			return DareAssignment{}, err
		}
	}

	// Re-validate: another operation could have assigned a dare while the
	// lock was released.
	err = s.state.UpdateProfile(principal, func(p *darely.UserProfile) error {
		if p.ActiveDareID != nil {
			return errActiveDare()
		}
		id := assignment.Dare.ID
		p.ActiveDareID = &id
		return nil
	})
	if err != nil {
		return DareAssignment{}, err
	}
	return assignment, nil
}

func (s *Service) chooseTier(difficulty *darely.Difficulty) darely.Difficulty {
	if difficulty != nil {
		return *difficulty
	}
	tiers := []darely.Difficulty{darely.DifficultyEasy, darely.DifficultyMedium, darely.DifficultyHard}
	return tiers[s.pick(len(tiers))]
}

// callGenerator asks the external generator for dare text. It runs without
// the service lock held.
func (s *Service) callGenerator(ctx context.Context, tier darely.Difficulty) (string, error) {
	if s.generator == nil {
		return "", apperrors.New(apperrors.CodeExternalCallFailed, "no dare generator configured")
	}
	return s.generator.GenerateDare(ctx, tier)
}

// persistGenerated stores generated dare text as a new dare, recording it in
// the journal.
func (s *Service) persistGenerated(tier darely.Difficulty, text string) (DareAssignment, error) {
	id, err := s.state.NextDareID()
	if err != nil {
		return DareAssignment{}, err
	}
	dare := darely.Dare{ID: id, Text: text, Difficulty: tier}
	if err := s.state.InsertDare(dare); err != nil {
		return DareAssignment{}, err
	}
	if _, err := s.state.AppendJournal(dare); err != nil {
		return DareAssignment{}, err
	}
	return DareAssignment{Dare: dare, Generated: true}, nil
}

// storedDare picks a random dare from the stored collection, honoring the
// requested difficulty when one was given.
func (s *Service) storedDare(difficulty *darely.Difficulty) (DareAssignment, error) {
	available, err := s.state.FilterDares(func(dare darely.Dare) bool {
		return difficulty == nil || dare.Difficulty == *difficulty
	})
	if err != nil {
		return DareAssignment{}, err
	}
	if len(available) == 0 {
		return DareAssignment{}, apperrors.New(apperrors.CodeNoDaresAvailable, "no dares available for that difficulty right now")
	}
	return DareAssignment{Dare: available[s.pick(len(available))]}, nil
}

// SubmitResult is the outcome of SubmitDare.
type SubmitResult struct {
	DareID         uint64
	CurrentStreak  uint32
	LongestStreak  uint32
	RedeemEligible bool
}

// SubmitDare records completion of the principal's active dare, advancing the
// streak counters.
func (s *Service) SubmitDare(ctx context.Context, principal darely.Principal, proof string) (SubmitResult, error) {
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return SubmitResult{}, apperrors.New(apperrors.CodeInvalidArgument, "proof cannot be empty")
	}
	if len(proof) > MaxProofLen {
		return SubmitResult{}, apperrors.New(apperrors.CodeInvalidArgument, "proof is too long")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var result SubmitResult
	err := s.state.UpdateProfile(principal, func(profile *darely.UserProfile) error {
		if profile.ActiveDareID == nil {
			return apperrors.New(apperrors.CodeNoActiveDare, "no active dare found, request one first")
		}
		dareID := *profile.ActiveDareID
		if _, had, err := s.state.Dare(dareID); err != nil {
			return err
		} else if !had {
			return apperrors.New(apperrors.CodeStorageCorrupted, "active dare missing from storage")
		}

		profile.ActiveDareID = nil
		profile.CurrentStreak++
		profile.DaresCompleted++
		profile.LastCompletedAt = s.now().Unix()
		if profile.CurrentStreak > profile.LongestStreak {
			profile.LongestStreak = profile.CurrentStreak
		}

		eligible, err := s.eligibleTasks(*profile)
		if err != nil {
			return err
		}
		result = SubmitResult{
			DareID:         dareID,
			CurrentStreak:  profile.CurrentStreak,
			LongestStreak:  profile.LongestStreak,
			RedeemEligible: len(eligible) > 0,
		}
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return SubmitResult{}, errNotRegistered()
		}
		return SubmitResult{}, err
	}
	return result, nil
}

// RedeemResult is the outcome of Redeem.
type RedeemResult struct {
	Task           darely.RedemptionTask
	PreviousStreak uint32
}

// Redeem claims a random un-redeemed task whose threshold the current streak
// meets, records the claim on the profile, and resets the streak.
func (s *Service) Redeem(ctx context.Context, principal darely.Principal) (RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result RedeemResult
	err := s.state.UpdateProfile(principal, func(profile *darely.UserProfile) error {
		eligible, err := s.eligibleTasks(*profile)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return apperrors.WithMetadata(apperrors.CodeStreakTooLow,
				"you need a higher streak to redeem a task, keep going",
				map[string]string{"current_streak": strconv.FormatUint(uint64(profile.CurrentStreak), 10)})
		}
		task := eligible[s.pick(len(eligible))]
		result = RedeemResult{Task: task, PreviousStreak: profile.CurrentStreak}
		profile.RedeemedTaskIDs = append(profile.RedeemedTaskIDs, task.ID)
		profile.CurrentStreak = 0
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return RedeemResult{}, errNotRegistered()
		}
		return RedeemResult{}, err
	}
	return result, nil
}

// eligibleTasks lists un-redeemed tasks whose threshold the profile's current
// streak meets.
func (s *Service) eligibleTasks(profile darely.UserProfile) ([]darely.RedemptionTask, error) {
	return s.state.FilterTasks(func(task darely.RedemptionTask) bool {
		return task.RequiredStreak <= profile.CurrentStreak && !profile.HasRedeemed(task.ID)
	})
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	Principal     darely.Principal
	LongestStreak uint32
	CurrentStreak uint32
}

// Leaderboard returns the top players by longest streak. Ties break on
// principal order so the board is stable across calls.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []LeaderboardEntry
	err := s.state.Users(func(principal darely.Principal, profile darely.UserProfile) bool {
		entries = append(entries, LeaderboardEntry{
			Principal:     principal,
			LongestStreak: profile.LongestStreak,
			CurrentStreak: profile.CurrentStreak,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LongestStreak != entries[j].LongestStreak {
			return entries[i].LongestStreak > entries[j].LongestStreak
		}
		return entries[i].Principal < entries[j].Principal
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// DaresByDifficulty lists the stored dares of one tier in id order.
func (s *Service) DaresByDifficulty(ctx context.Context, difficulty darely.Difficulty) ([]darely.Dare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FilterDares(func(dare darely.Dare) bool {
		return dare.Difficulty == difficulty
	})
}

// TasksForStreak lists the tasks a streak qualifies for in id order.
func (s *Service) TasksForStreak(ctx context.Context, streak uint32) ([]darely.RedemptionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FilterTasks(func(task darely.RedemptionTask) bool {
		return task.RequiredStreak <= streak
	})
}

// AddDare stores a new dare. Admin only.
func (s *Service) AddDare(ctx context.Context, caller darely.Principal, difficulty darely.Difficulty, text string) (darely.Dare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(caller); err != nil {
		return darely.Dare{}, err
	}
	text = strings.TrimSpace(text)
	if len(text) < MinDareTextLen || len(text) > MaxDareTextLen {
		return darely.Dare{}, apperrors.New(apperrors.CodeInvalidArgument, "dare text must be between 5 and 500 characters")
	}
	id, err := s.state.NextDareID()
	if err != nil {
		return darely.Dare{}, err
	}
	dare := darely.Dare{ID: id, Text: text, Difficulty: difficulty}
	if err := s.state.InsertDare(dare); err != nil {
		return darely.Dare{}, err
	}
	return dare, nil
}

// AddTask stores a new redemption task. Admin only.
func (s *Service) AddTask(ctx context.Context, caller darely.Principal, requiredStreak uint32, description string) (darely.RedemptionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(caller); err != nil {
		return darely.RedemptionTask{}, err
	}
	if requiredStreak < 1 {
		return darely.RedemptionTask{}, apperrors.New(apperrors.CodeInvalidArgument, "required streak must be 1 or greater")
	}
	description = strings.TrimSpace(description)
	if len(description) < MinDareTextLen || len(description) > MaxDareTextLen {
		return darely.RedemptionTask{}, apperrors.New(apperrors.CodeInvalidArgument, "task description must be between 5 and 500 characters")
	}
	id, err := s.state.NextTaskID()
	if err != nil {
		return darely.RedemptionTask{}, err
	}
	task := darely.RedemptionTask{ID: id, Description: description, RequiredStreak: requiredStreak}
	if err := s.state.InsertTask(task); err != nil {
		return darely.RedemptionTask{}, err
	}
	return task, nil
}

// AddAdmin grants admin rights. Admin only.
func (s *Service) AddAdmin(ctx context.Context, caller, target darely.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	return s.state.AddAdmin(target)
}

// RemoveAdmin revokes admin rights. Admin only.
func (s *Service) RemoveAdmin(ctx context.Context, caller, target darely.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	return s.state.RemoveAdmin(target)
}

// IsAdmin reports whether the principal is an admin.
func (s *Service) IsAdmin(ctx context.Context, principal darely.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsAdmin(principal)
}

func (s *Service) requireAdmin(caller darely.Principal) error {
	ok, err := s.state.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.CodeNotAdmin, "only admins can use this command")
	}
	return nil
}

func errNotRegistered() error {
	return apperrors.New(apperrors.CodeNotFound, "you need to register first")
}

func errActiveDare() error {
	return apperrors.New(apperrors.CodeActiveDareExists, "you already have an active dare, submit it first")
}
