// Package domain holds the engagement types shared by the engines, stores and API.
// The engagement engine turns daily couple activity into XP, levels,
// relationship tiers and perfect-day streaks.
package domain

import "time"

// ─── Experience Types ───────────────────────────────────────────────────────

// ExperienceState is the persisted XP state of one profile.
// Level and Tier are always derived from TotalXP.
type ExperienceState struct {
	TotalXP      int64 `json:"total_xp"`
	CurrentLevel int   `json:"current_level"`
	CurrentTier  Tier  `json:"current_tier"`
}

// XPAction is a rewarded action from the fixed catalog.
type XPAction string

const (
	ActionSendTouch       XPAction = "send_touch"
	ActionRespondToTouch  XPAction = "respond_to_touch"
	ActionPerfectDay      XPAction = "perfect_day"
	ActionQualityTouch    XPAction = "quality_touch"
	ActionStreakMilestone XPAction = "streak_milestone"
)

// XPActions lists the catalog in display order.
var XPActions = []XPAction{
	ActionSendTouch,
	ActionRespondToTouch,
	ActionPerfectDay,
	ActionQualityTouch,
	ActionStreakMilestone,
}

// XPValue returns the fixed reward for the action (0 for unknown actions).
func (a XPAction) XPValue() int64 {
	switch a {
	case ActionSendTouch:
		return 10
	case ActionRespondToTouch:
		return 15
	case ActionPerfectDay:
		return 50
	case ActionQualityTouch:
		return 25
	case ActionStreakMilestone:
		return 100
	}
	return 0
}

// Description returns the user-facing label of the action.
func (a XPAction) Description() string {
	switch a {
	case ActionSendTouch:
		return "Send touch"
	case ActionRespondToTouch:
		return "Respond to touch within 2h"
	case ActionPerfectDay:
		return "Close all goals (Perfect Day)"
	case ActionQualityTouch:
		return "30+ second quality touch"
	case ActionStreakMilestone:
		return "7-day streak milestone"
	}
	return string(a)
}

// Valid reports whether the action belongs to the catalog.
func (a XPAction) Valid() bool {
	return a.XPValue() > 0
}

// ParseXPAction resolves an action name.
func ParseXPAction(s string) (XPAction, error) {
	a := XPAction(s)
	if !a.Valid() {
		return "", ErrUnknownAction
	}
	return a, nil
}

// ─── Tier Types ─────────────────────────────────────────────────────────────

// Tier is the coarse relationship-progress classification derived from level.
type Tier string

const (
	TierNewLove          Tier = "new_love"
	TierDeepeningBond    Tier = "deepening_bond"
	TierStrongConnection Tier = "strong_connection"
	TierSoulmates        Tier = "soulmates"
)

// TierInfo describes a tier's level range and what it unlocks.
// MaxLevel 0 means open-ended.
type TierInfo struct {
	Tier     Tier     `json:"tier"`
	Name     string   `json:"name"`
	MinLevel int      `json:"min_level"`
	MaxLevel int      `json:"max_level"`
	Icon     string   `json:"icon"`
	Color    string   `json:"color"`
	Unlocks  []string `json:"unlocks"`
}

// LevelUp is raised when an XP award moves a profile to a higher level.
type LevelUp struct {
	NewLevel int      `json:"new_level"`
	NewTier  Tier     `json:"new_tier"`
	XPEarned int64    `json:"xp_earned"`
	Action   XPAction `json:"action"`
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakState is the persisted perfect-day streak of one profile.
type StreakState struct {
	CurrentStreak      int        `json:"current_streak"`
	LongestStreak      int        `json:"longest_streak"`
	FreezeTokens       int        `json:"freeze_tokens"`
	FreezeTokensUsed   int        `json:"freeze_tokens_used"`
	LastPerfectDay     *time.Time `json:"last_perfect_day,omitempty"` // midnight in the engine's zone
	AchievedMilestones []int      `json:"achieved_milestones"`        // ascending, never shrinks
}

// HasMilestone reports whether the milestone threshold has been recorded.
func (s StreakState) HasMilestone(days int) bool {
	for _, d := range s.AchievedMilestones {
		if d == days {
			return true
		}
	}
	return false
}

// StreakMilestone is one entry of the static milestone table.
type StreakMilestone struct {
	Days   int    `json:"days"`
	Badge  string `json:"badge"`
	Reward string `json:"reward"`
	Icon   string `json:"icon"`
}

// StreakMilestoneAchieved is raised the first time a streak reaches a milestone.
type StreakMilestoneAchieved struct {
	Milestone     StreakMilestone `json:"milestone"`
	CurrentStreak int             `json:"current_streak"`
	FreezeGranted bool            `json:"freeze_granted"`
}

// StreakOutcome reports what a daily check did to the streak.
type StreakOutcome string

const (
	StreakIgnored   StreakOutcome = "ignored"    // not a perfect day
	StreakStarted   StreakOutcome = "started"    // first perfect day ever
	StreakSameDay   StreakOutcome = "same_day"   // already counted today
	StreakClockSkew StreakOutcome = "clock_skew" // today is before the last perfect day
	StreakExtended  StreakOutcome = "extended"
	StreakFrozen    StreakOutcome = "frozen" // one missed day bridged with a token
	StreakReset     StreakOutcome = "reset"
)

// Mutated reports whether the outcome changed the stored state.
func (o StreakOutcome) Mutated() bool {
	switch o {
	case StreakStarted, StreakExtended, StreakFrozen, StreakReset:
		return true
	}
	return false
}

// ─── Daily Goals Types ──────────────────────────────────────────────────────

// GoalTargets are the daily goal thresholds.
type GoalTargets struct {
	Touches        int `json:"touches" toml:"touches" validate:"min=1"`
	Responses      int `json:"responses" toml:"responses" validate:"min=1"`
	QualitySeconds int `json:"quality_seconds" toml:"quality_seconds" validate:"min=1"`
}

// DefaultGoalTargets returns the app's default daily goals.
func DefaultGoalTargets() GoalTargets {
	return GoalTargets{Touches: 5, Responses: 3, QualitySeconds: 60}
}

// DailyGoals is the persisted per-day goal progress of one profile.
type DailyGoals struct {
	Day               time.Time `json:"day"`
	Touches           int       `json:"touches"`
	Responses         int       `json:"responses"`
	QualitySeconds    int       `json:"quality_seconds"`
	PerfectDayAwarded bool      `json:"perfect_day_awarded"`
}

// GoalsView is DailyGoals with the targets and derived completion flags.
type GoalsView struct {
	DailyGoals
	Targets              GoalTargets `json:"targets"`
	TouchComplete        bool        `json:"touch_complete"`
	ResponseComplete     bool        `json:"response_complete"`
	QualityComplete      bool        `json:"quality_complete"`
	PerfectDay           bool        `json:"perfect_day"`
	ConnectionPercentage float64     `json:"connection_percentage"`
	ConnectionMessage    string      `json:"connection_message"`
}

// PerfectDay is raised once per day when all daily goals are complete.
type PerfectDay struct {
	Day           time.Time `json:"day"`
	CurrentStreak int       `json:"current_streak"`
}

// ─── Events ─────────────────────────────────────────────────────────────────

// EventType categorizes engagement events.
type EventType string

const (
	EventLevelUp         EventType = "level_up"
	EventStreakMilestone EventType = "streak_milestone"
	EventPerfectDay      EventType = "perfect_day"
)

// Event is an in-process engagement notification. Exactly one payload is set.
type Event struct {
	ID         string                   `json:"id"`
	Type       EventType                `json:"type"`
	ProfileID  string                   `json:"profile_id"`
	OccurredAt time.Time                `json:"occurred_at"`
	LevelUp    *LevelUp                 `json:"level_up,omitempty"`
	Milestone  *StreakMilestoneAchieved `json:"milestone,omitempty"`
	PerfectDay *PerfectDay              `json:"perfect_day,omitempty"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// Notification is a user-facing message derived from an event.
type Notification struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Shown     bool      `json:"shown"`
}

// NotificationPolicy governs how often notifications are stored.
type NotificationPolicy struct {
	MaxPerDay  int    `json:"max_per_day" toml:"max_per_day" validate:"min=1"`
	QuietStart string `json:"quiet_start" toml:"quiet_start" validate:"omitempty,datetime=15:04"`
	QuietEnd   string `json:"quiet_end" toml:"quiet_end" validate:"omitempty,datetime=15:04"`
}

// DefaultNotificationPolicy caps a couple at a handful of celebrations per day
// and keeps the night quiet.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay:  5,
		QuietStart: "23:00",
		QuietEnd:   "07:00",
	}
}

// ─── Summary ────────────────────────────────────────────────────────────────

// LevelView is the experience state with its derived progress and tier metadata.
type LevelView struct {
	ExperienceState
	NextLevelXP int64    `json:"next_level_xp"`
	Progress    float64  `json:"progress"` // fraction of the current level, 0..1
	Tier        TierInfo `json:"tier"`
}

// StreakView is the streak state with its encouragement message.
type StreakView struct {
	StreakState
	Message       string           `json:"message"`
	NextMilestone *StreakMilestone `json:"next_milestone,omitempty"`
}

// Summary is the combined engagement view of a profile.
type Summary struct {
	ProfileID string     `json:"profile_id"`
	Level     LevelView  `json:"level"`
	Streak    StreakView `json:"streak"`
	Goals     GoalsView  `json:"goals"`
}
