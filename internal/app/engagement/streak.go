// Package engagement implements the couple engagement engine.
// Levels and tiers from XP, perfect-day streaks with freeze tokens and
// milestones, daily goals, and the notifications they produce.
package engagement

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// StreakResult reports the effect of one daily check.
type StreakResult struct {
	Outcome    domain.StreakOutcome             `json:"outcome"`
	Streak     domain.StreakState               `json:"streak"`
	Milestones []domain.StreakMilestoneAchieved `json:"milestones,omitempty"`
}

// StreakService manages the perfect-day streak of one profile.
// A day counts once; a single missed day is bridged by a freeze token;
// anything longer resets the streak to 1.
// Not safe for concurrent use; the Manager serializes access per profile.
type StreakService struct {
	rec   recorder
	pub   domain.Publisher
	clock domain.Clock
	log   *zap.Logger
	state domain.StreakState
}

// NewStreakService restores the profile's streak from the store, or starts
// empty. store and pub may be nil; a nil clock means UTC system time.
func NewStreakService(ctx context.Context, profileID string, store domain.Store, pub domain.Publisher, clock domain.Clock, logger *zap.Logger) *StreakService {
	if clock == nil {
		clock = SystemClock{}
	}
	s := &StreakService{
		rec:   newRecorder(store, profileID, domain.RecordStreak, logger),
		pub:   pub,
		clock: clock,
	}
	s.log = s.rec.log

	var stored domain.StreakState
	if s.rec.load(ctx, &stored) && validStreak(stored) {
		s.state = stored
	}
	if s.state.LongestStreak < s.state.CurrentStreak {
		s.state.LongestStreak = s.state.CurrentStreak
	}
	return s
}

func validStreak(s domain.StreakState) bool {
	if s.CurrentStreak < 0 || s.FreezeTokens < 0 || s.FreezeTokensUsed < 0 {
		return false
	}
	prev := 0
	for _, d := range s.AchievedMilestones {
		if _, ok := MilestoneFor(d); !ok || d <= prev {
			return false
		}
		prev = d
	}
	return true
}

// State returns a copy of the current streak.
func (s *StreakService) State() domain.StreakState {
	out := s.state
	out.AchievedMilestones = append([]int{}, s.state.AchievedMilestones...)
	if s.state.LastPerfectDay != nil {
		day := *s.state.LastPerfectDay
		out.LastPerfectDay = &day
	}
	return out
}

// View returns the streak with its message and the next badge to earn.
func (s *StreakService) View() domain.StreakView {
	v := domain.StreakView{StreakState: s.State(), Message: s.StreakMessage()}
	if m, ok := NextMilestone(s.state.CurrentStreak); ok {
		v.NextMilestone = &m
	}
	return v
}

// CheckDailyStreak records today's result. Calls with isPerfectDay false, a
// second call on the same day, and days before the last perfect day leave the
// state untouched.
func (s *StreakService) CheckDailyStreak(ctx context.Context, isPerfectDay bool) StreakResult {
	outcome := s.advance(isPerfectDay)
	metrics.StreakUpdates.WithLabelValues(string(outcome)).Inc()
	if !outcome.Mutated() {
		return StreakResult{Outcome: outcome, Streak: s.State()}
	}

	achieved := checkMilestones(&s.state)
	if s.state.CurrentStreak > s.state.LongestStreak {
		s.state.LongestStreak = s.state.CurrentStreak
	}
	s.log.Debug("streak updated",
		zap.String("outcome", string(outcome)),
		zap.Int("streak", s.state.CurrentStreak),
		zap.Int("freeze_tokens", s.state.FreezeTokens))

	s.rec.save(ctx, s.state)

	for i := range achieved {
		a := achieved[i]
		metrics.StreakMilestones.WithLabelValues(strconv.Itoa(a.Milestone.Days)).Inc()
		s.log.Info("streak milestone",
			zap.Int("days", a.Milestone.Days),
			zap.String("badge", a.Milestone.Badge))
		if s.pub != nil {
			s.pub.Publish(ctx, domain.Event{
				Type:      domain.EventStreakMilestone,
				ProfileID: s.rec.profileID,
				Milestone: &a,
			})
		}
	}
	return StreakResult{Outcome: outcome, Streak: s.State(), Milestones: achieved}
}

// advance applies the day-gap rules to the in-memory state.
func (s *StreakService) advance(isPerfectDay bool) domain.StreakOutcome {
	if !isPerfectDay {
		return domain.StreakIgnored
	}
	today := startOfDay(s.clock.Now())

	if s.state.LastPerfectDay == nil {
		s.state.CurrentStreak = 1
		s.state.LastPerfectDay = &today
		return domain.StreakStarted
	}

	gap := daysBetween(*s.state.LastPerfectDay, today)
	switch {
	case gap == 0:
		return domain.StreakSameDay
	case gap < 0:
		s.log.Warn("clock moved before last perfect day",
			zap.Time("last", *s.state.LastPerfectDay),
			zap.Time("today", today))
		return domain.StreakClockSkew
	case gap == 1:
		s.state.CurrentStreak++
		s.state.LastPerfectDay = &today
		return domain.StreakExtended
	case gap == 2 && s.state.FreezeTokens > 0:
		s.state.FreezeTokens--
		s.state.FreezeTokensUsed++
		s.state.CurrentStreak++
		s.state.LastPerfectDay = &today
		metrics.FreezeTokensConsumed.Inc()
		return domain.StreakFrozen
	default:
		s.state.CurrentStreak = 1
		s.state.LastPerfectDay = &today
		return domain.StreakReset
	}
}

// StreakMessage returns the encouragement line for the current streak.
func (s *StreakService) StreakMessage() string {
	return StreakMessage(s.state.CurrentStreak)
}
