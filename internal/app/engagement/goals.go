package engagement

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
)

// connectionWeight is the share of the connection meter each goal carries.
const connectionWeight = 33.33

// GoalsService tracks one profile's daily goals: touches sent, responses,
// and the longest single quality touch. Progress resets when the day changes.
// Not safe for concurrent use; the Manager serializes access per profile.
type GoalsService struct {
	rec     recorder
	clock   domain.Clock
	targets domain.GoalTargets
	log     *zap.Logger
	state   domain.DailyGoals
}

// NewGoalsService restores today's goals from the store. Progress stored for
// an earlier day is discarded. Non-positive targets fall back to the defaults.
func NewGoalsService(ctx context.Context, profileID string, store domain.Store, clock domain.Clock, targets domain.GoalTargets, logger *zap.Logger) *GoalsService {
	if clock == nil {
		clock = SystemClock{}
	}
	def := domain.DefaultGoalTargets()
	if targets.Touches <= 0 {
		targets.Touches = def.Touches
	}
	if targets.Responses <= 0 {
		targets.Responses = def.Responses
	}
	if targets.QualitySeconds <= 0 {
		targets.QualitySeconds = def.QualitySeconds
	}
	g := &GoalsService{
		rec:     newRecorder(store, profileID, domain.RecordGoals, logger),
		clock:   clock,
		targets: targets,
	}
	g.log = g.rec.log

	var stored domain.DailyGoals
	if g.rec.load(ctx, &stored) && stored.Touches >= 0 && stored.Responses >= 0 && stored.QualitySeconds >= 0 {
		g.state = stored
	}
	g.rollover()
	return g
}

// Targets returns the configured daily goal thresholds.
func (g *GoalsService) Targets() domain.GoalTargets {
	return g.targets
}

// View returns today's progress with completion flags and the connection meter.
func (g *GoalsService) View() domain.GoalsView {
	g.rollover()
	return g.view()
}

func (g *GoalsService) view() domain.GoalsView {
	v := domain.GoalsView{
		DailyGoals:       g.state,
		Targets:          g.targets,
		TouchComplete:    g.state.Touches >= g.targets.Touches,
		ResponseComplete: g.state.Responses >= g.targets.Responses,
		QualityComplete:  g.state.QualitySeconds >= g.targets.QualitySeconds,
	}
	v.PerfectDay = v.TouchComplete && v.ResponseComplete && v.QualityComplete

	completed := 0
	for _, done := range []bool{v.TouchComplete, v.ResponseComplete, v.QualityComplete} {
		if done {
			completed++
		}
	}
	partial := (float64(g.state.Touches)/float64(g.targets.Touches) +
		float64(g.state.Responses)/float64(g.targets.Responses) +
		float64(g.state.QualitySeconds)/float64(g.targets.QualitySeconds)) / 3
	v.ConnectionPercentage = math.Min(100, float64(completed)*connectionWeight+partial*connectionWeight)
	v.ConnectionMessage = ConnectionMessage(v.ConnectionPercentage)
	return v
}

// RecordTouchSent counts a sent touch. Reports whether it moved the goal,
// which is when the touch earns XP.
func (g *GoalsService) RecordTouchSent(ctx context.Context) bool {
	g.rollover()
	if g.state.Touches >= g.targets.Touches {
		return false
	}
	g.state.Touches++
	g.rec.save(ctx, g.state)
	return true
}

// RecordResponse counts a response to the partner's touch.
func (g *GoalsService) RecordResponse(ctx context.Context) bool {
	g.rollover()
	if g.state.Responses >= g.targets.Responses {
		return false
	}
	g.state.Responses++
	g.rec.save(ctx, g.state)
	return true
}

// RecordQualityTouch records the duration of one touch. Progress keeps the
// longest touch of the day, capped at the target. Reports whether this touch
// completed the goal.
func (g *GoalsService) RecordQualityTouch(ctx context.Context, seconds int) (bool, error) {
	if seconds < 0 {
		return false, domain.ErrInvalidGoal
	}
	g.rollover()
	progress := min(seconds, g.targets.QualitySeconds)
	if progress <= g.state.QualitySeconds {
		return false, nil
	}
	old := g.state.QualitySeconds
	g.state.QualitySeconds = progress
	g.rec.save(ctx, g.state)
	return old < g.targets.QualitySeconds && progress >= g.targets.QualitySeconds, nil
}

// ClaimPerfectDay marks today as rewarded if every goal is complete.
// Returns true exactly once per day.
func (g *GoalsService) ClaimPerfectDay(ctx context.Context) bool {
	g.rollover()
	if g.state.PerfectDayAwarded || !g.view().PerfectDay {
		return false
	}
	g.state.PerfectDayAwarded = true
	g.rec.save(ctx, g.state)
	return true
}

// rollover starts a fresh day when the clock has moved past the stored day.
func (g *GoalsService) rollover() {
	today := startOfDay(g.clock.Now())
	if !g.state.Day.IsZero() && daysBetween(g.state.Day, today) <= 0 {
		return
	}
	if !g.state.Day.IsZero() {
		g.log.Debug("daily goals reset", zap.Time("previous_day", g.state.Day))
	}
	g.state = domain.DailyGoals{Day: today}
}

// ConnectionMessage describes the connection meter reading.
func ConnectionMessage(pct float64) string {
	switch {
	case pct <= 25:
		return "Your bond needs attention 💙"
	case pct <= 50:
		return "You're connecting nicely 💜"
	case pct <= 75:
		return "Your bond is strong 💖"
	case pct < 100:
		return "Your bond is very strong 💗"
	default:
		return "Your bond is unbreakable today! 💝"
	}
}
