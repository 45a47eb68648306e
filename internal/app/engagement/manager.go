package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// ManagerConfig wires a Manager's collaborators. Zero values get defaults.
type ManagerConfig struct {
	Store         domain.Store
	Bus           *Bus
	Clock         domain.Clock
	Targets       domain.GoalTargets
	Notifications *NotificationService
	Logger        *zap.Logger

	// MaxProfiles bounds the profiles held in memory; ProfileIdle is how long
	// an unused profile stays loaded.
	MaxProfiles int
	ProfileIdle time.Duration
}

// maxCommitAttempts bounds how often an operation is replayed on fresh state
// after another writer saved the same profile first.
const maxCommitAttempts = 3

// AwardResult is the outcome of a direct XP award.
type AwardResult struct {
	XPAwarded int64            `json:"xp_awarded"`
	Level     domain.LevelView `json:"level"`
	LevelUp   *domain.LevelUp  `json:"level_up,omitempty"`
}

// GoalUpdate is the outcome of recording goal progress.
type GoalUpdate struct {
	Goals      domain.GoalsView `json:"goals"`
	XPAwarded  int64            `json:"xp_awarded"`
	Level      domain.LevelView `json:"level"`
	LevelUps   []domain.LevelUp `json:"level_ups,omitempty"`
	PerfectDay bool             `json:"perfect_day"`
	Streak     *StreakResult    `json:"streak,omitempty"`
}

// profile bundles the engines of one profile behind one lock.
type profile struct {
	mu     sync.Mutex
	loaded bool
	level  *LevelService
	streak *StreakService
	goals  *GoalsService
	out    outbox
}

func (p *profile) recorders() []*recorder {
	return []*recorder{&p.level.rec, &p.streak.rec, &p.goals.rec}
}

// Manager owns the engines of active profiles. Operations on one profile
// are serialized; different profiles proceed in parallel. Event subscribers
// run under the profile lock and must not call back into the Manager for the
// same profile.
//
// Every mutation commits the profile's records together, conditional on the
// revisions it loaded. When another process (the CLI, a second replica)
// saved first, the profile is reloaded and the mutation replayed, so no
// writer overwrites state it never saw.
type Manager struct {
	store   domain.Store
	bus     *Bus
	clock   domain.Clock
	targets domain.GoalTargets
	notifs  *NotificationService
	log     *zap.Logger
	cache   *profileCache
}

// NewManager creates a manager. A nil Store keeps state in memory only.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Bus == nil {
		cfg.Bus = NewBus(cfg.Clock, cfg.Logger)
	}
	if cfg.Targets == (domain.GoalTargets{}) {
		cfg.Targets = domain.DefaultGoalTargets()
	}
	return &Manager{
		store:   cfg.Store,
		bus:     cfg.Bus,
		clock:   cfg.Clock,
		targets: cfg.Targets,
		notifs:  cfg.Notifications,
		log:     cfg.Logger.Named("engagement"),
		cache:   newProfileCache(cfg.MaxProfiles, cfg.ProfileIdle, cfg.Clock),
	}
}

// Bus returns the event bus engines publish to.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Active returns the number of profiles held in memory.
func (m *Manager) Active() int {
	return m.cache.len()
}

// Evict drops a profile's engines from memory. The next operation reloads it.
func (m *Manager) Evict(profileID string) {
	m.cache.remove(profileID)
}

// Reap drops profiles idle longer than the configured timeout and reports
// how many were dropped.
func (m *Manager) Reap() int {
	n := m.cache.reap()
	if n > 0 {
		m.log.Debug("idle profiles evicted", zap.Int("count", n), zap.Int("active", m.cache.len()))
	}
	return n
}

// IdleReaper calls Reap every interval until ctx is done.
func (m *Manager) IdleReaper(ctx context.Context, interval time.Duration) {
	m.cache.idleReaper(ctx, interval)
}

// withProfile runs fn holding the profile's lock, loading it first if needed.
func (m *Manager) withProfile(ctx context.Context, profileID string, fn func(p *profile) error) error {
	if profileID == "" {
		return domain.ErrMissingProfile
	}

	e := m.cache.acquire(profileID)
	defer m.cache.release(e)
	p := e.profile

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		if err := m.load(ctx, profileID, p); err != nil {
			return err
		}
	}
	return fn(p)
}

// mutate runs fn under the profile lock and commits the records it changed.
// Events fn raised reach the bus only after the commit. On a revision
// conflict the profile is reloaded and fn runs again, so fn must derive its
// results from scratch on every call.
func (m *Manager) mutate(ctx context.Context, profileID string, fn func(p *profile) error) error {
	return m.withProfile(ctx, profileID, func(p *profile) error {
		for attempt := 1; ; attempt++ {
			if err := fn(p); err != nil {
				p.out.discard()
				return err
			}

			err := commit(ctx, m.store, p.recorders()...)
			if !errors.Is(err, domain.ErrRevisionConflict) {
				// Other store failures are already counted; the in-memory
				// state stands and the queued records go out with the next commit.
				p.out.flush(ctx, m.bus)
				return nil
			}

			p.out.discard()
			p.loaded = false
			m.log.Info("profile changed by another writer, reloading",
				zap.String("profile", profileID), zap.Int("attempt", attempt))
			if attempt == maxCommitAttempts {
				return fmt.Errorf("profile %s: %w", profileID, err)
			}
			if err := m.load(ctx, profileID, p); err != nil {
				return err
			}
		}
	})
}

// load restores the three engine records concurrently.
// A cancelled context leaves the profile unloaded so defaults never replace
// stored state.
func (m *Manager) load(ctx context.Context, profileID string, p *profile) error {
	g, gctx := errgroup.WithContext(ctx)
	var (
		level  *LevelService
		streak *StreakService
		goals  *GoalsService
	)
	g.Go(func() error {
		level = NewLevelService(gctx, profileID, m.store, &p.out, m.log)
		return gctx.Err()
	})
	g.Go(func() error {
		streak = NewStreakService(gctx, profileID, m.store, &p.out, m.clock, m.log)
		return gctx.Err()
	})
	g.Go(func() error {
		goals = NewGoalsService(gctx, profileID, m.store, m.clock, m.targets, m.log)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load profile %s: %w", profileID, err)
	}
	p.level, p.streak, p.goals = level, streak, goals
	for _, r := range p.recorders() {
		r.staged = true
	}
	p.loaded = true
	return nil
}

// ─── Leveling ───────────────────────────────────────────────────────────────

// Level returns the profile's level view.
func (m *Manager) Level(ctx context.Context, profileID string) (domain.LevelView, error) {
	var v domain.LevelView
	err := m.withProfile(ctx, profileID, func(p *profile) error {
		v = p.level.View()
		return nil
	})
	return v, err
}

// AwardXP grants XP for an action. A zero amount means the action's catalog value.
func (m *Manager) AwardXP(ctx context.Context, profileID string, action domain.XPAction, amount int64) (AwardResult, error) {
	if amount == 0 {
		amount = action.XPValue()
	}
	var res AwardResult
	err := m.mutate(ctx, profileID, func(p *profile) error {
		up, err := p.level.AddXP(ctx, amount, action)
		if err != nil {
			return err
		}
		res = AwardResult{XPAwarded: amount, Level: p.level.View(), LevelUp: up}
		return nil
	})
	return res, err
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// Streak returns the profile's streak view.
func (m *Manager) Streak(ctx context.Context, profileID string) (domain.StreakView, error) {
	var v domain.StreakView
	err := m.withProfile(ctx, profileID, func(p *profile) error {
		v = p.streak.View()
		return nil
	})
	return v, err
}

// CheckDailyStreak runs the daily streak check directly. Milestones reached
// also earn their XP.
func (m *Manager) CheckDailyStreak(ctx context.Context, profileID string, isPerfectDay bool) (StreakResult, error) {
	var res StreakResult
	err := m.mutate(ctx, profileID, func(p *profile) error {
		res = p.streak.CheckDailyStreak(ctx, isPerfectDay)
		m.rewardMilestones(ctx, p, res.Milestones)
		return nil
	})
	return res, err
}

func (m *Manager) rewardMilestones(ctx context.Context, p *profile, achieved []domain.StreakMilestoneAchieved) {
	for range achieved {
		if _, err := p.level.AddXP(ctx, domain.ActionStreakMilestone.XPValue(), domain.ActionStreakMilestone); err != nil {
			m.log.Warn("milestone xp", zap.Error(err))
		}
	}
}

// ─── Daily Goals ────────────────────────────────────────────────────────────

// Goals returns today's goal progress.
func (m *Manager) Goals(ctx context.Context, profileID string) (domain.GoalsView, error) {
	var v domain.GoalsView
	err := m.withProfile(ctx, profileID, func(p *profile) error {
		v = p.goals.View()
		return nil
	})
	return v, err
}

// RecordTouchSent counts a sent touch toward today's goal.
func (m *Manager) RecordTouchSent(ctx context.Context, profileID string) (GoalUpdate, error) {
	return m.recordGoal(ctx, profileID, func(ctx context.Context, p *profile) (domain.XPAction, bool, error) {
		return domain.ActionSendTouch, p.goals.RecordTouchSent(ctx), nil
	})
}

// RecordResponse counts a response toward today's goal.
func (m *Manager) RecordResponse(ctx context.Context, profileID string) (GoalUpdate, error) {
	return m.recordGoal(ctx, profileID, func(ctx context.Context, p *profile) (domain.XPAction, bool, error) {
		return domain.ActionRespondToTouch, p.goals.RecordResponse(ctx), nil
	})
}

// RecordQualityTouch records a touch's duration toward the quality goal.
func (m *Manager) RecordQualityTouch(ctx context.Context, profileID string, seconds int) (GoalUpdate, error) {
	return m.recordGoal(ctx, profileID, func(ctx context.Context, p *profile) (domain.XPAction, bool, error) {
		done, err := p.goals.RecordQualityTouch(ctx, seconds)
		return domain.ActionQualityTouch, done, err
	})
}

// recordGoal applies one goal step, awards its XP, and settles the perfect day.
func (m *Manager) recordGoal(ctx context.Context, profileID string, step func(context.Context, *profile) (domain.XPAction, bool, error)) (GoalUpdate, error) {
	var upd GoalUpdate
	err := m.mutate(ctx, profileID, func(p *profile) error {
		upd = GoalUpdate{}
		action, earned, err := step(ctx, p)
		if err != nil {
			return err
		}
		if earned {
			m.award(ctx, p, action, &upd)
		}

		if p.goals.ClaimPerfectDay(ctx) {
			upd.PerfectDay = true
			m.award(ctx, p, domain.ActionPerfectDay, &upd)

			res := p.streak.CheckDailyStreak(ctx, true)
			upd.Streak = &res
			for range res.Milestones {
				m.award(ctx, p, domain.ActionStreakMilestone, &upd)
			}

			metrics.PerfectDays.Inc()
			p.out.Publish(ctx, domain.Event{
				Type:      domain.EventPerfectDay,
				ProfileID: profileID,
				PerfectDay: &domain.PerfectDay{
					Day:           p.goals.View().Day,
					CurrentStreak: res.Streak.CurrentStreak,
				},
			})
			m.log.Info("perfect day",
				zap.String("profile", profileID),
				zap.Int("streak", res.Streak.CurrentStreak))
		}

		upd.Goals = p.goals.View()
		upd.Level = p.level.View()
		return nil
	})
	return upd, err
}

func (m *Manager) award(ctx context.Context, p *profile, action domain.XPAction, upd *GoalUpdate) {
	up, err := p.level.AddXP(ctx, action.XPValue(), action)
	if err != nil {
		m.log.Warn("goal xp", zap.String("action", string(action)), zap.Error(err))
		return
	}
	upd.XPAwarded += action.XPValue()
	if up != nil {
		upd.LevelUps = append(upd.LevelUps, *up)
	}
}

// ─── Summary & Notifications ────────────────────────────────────────────────

// Summary returns level, streak and goals in one view.
func (m *Manager) Summary(ctx context.Context, profileID string) (domain.Summary, error) {
	var s domain.Summary
	err := m.withProfile(ctx, profileID, func(p *profile) error {
		s = domain.Summary{
			ProfileID: profileID,
			Level:     p.level.View(),
			Streak:    p.streak.View(),
			Goals:     p.goals.View(),
		}
		return nil
	})
	return s, err
}

// Notifications returns the profile's unshown notifications.
func (m *Manager) Notifications(ctx context.Context, profileID string, limit int) ([]domain.Notification, error) {
	if profileID == "" {
		return nil, domain.ErrMissingProfile
	}
	if m.notifs == nil {
		return []domain.Notification{}, nil
	}
	return m.notifs.Pending(ctx, profileID, limit)
}

// MarkNotificationShown acknowledges a notification.
func (m *Manager) MarkNotificationShown(ctx context.Context, profileID, id string) error {
	if profileID == "" {
		return domain.ErrMissingProfile
	}
	if m.notifs == nil {
		return domain.ErrNotificationNotFound
	}
	return m.notifs.MarkShown(ctx, profileID, id)
}
