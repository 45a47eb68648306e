package engagement

import (
	"fmt"

	"github.com/touchsync/touchsync/internal/domain"
)

// freezeTokenMilestone is the only milestone that grants a freeze token.
const freezeTokenMilestone = 7

// ─── Milestone Definitions ──────────────────────────────────────────────────
// Four badges, each earned once per profile lifetime.

var milestoneTable = []domain.StreakMilestone{
	{Days: 7, Badge: "Bronze Heart", Reward: "1 Freeze Token", Icon: "🥉"},
	{Days: 30, Badge: "Silver Heart", Reward: "Custom Gesture Slot", Icon: "🥈"},
	{Days: 100, Badge: "Gold Heart", Reward: "Advanced Patterns", Icon: "🥇"},
	{Days: 365, Badge: "Diamond Heart", Reward: "Premium 50% Off", Icon: "💎"},
}

// Milestones returns the milestone table in ascending order.
func Milestones() []domain.StreakMilestone {
	return append([]domain.StreakMilestone(nil), milestoneTable...)
}

// MilestoneFor returns the milestone for a threshold.
func MilestoneFor(days int) (domain.StreakMilestone, bool) {
	for _, m := range milestoneTable {
		if m.Days == days {
			return m, true
		}
	}
	return domain.StreakMilestone{}, false
}

// NextMilestone returns the first milestone above streak, if any.
func NextMilestone(streak int) (domain.StreakMilestone, bool) {
	for _, m := range milestoneTable {
		if streak < m.Days {
			return m, true
		}
	}
	return domain.StreakMilestone{}, false
}

// checkMilestones records every threshold the streak has reached but the
// profile has not yet earned, in ascending order. Returns the new achievements.
func checkMilestones(state *domain.StreakState) []domain.StreakMilestoneAchieved {
	var achieved []domain.StreakMilestoneAchieved
	for _, m := range milestoneTable {
		if state.CurrentStreak < m.Days || state.HasMilestone(m.Days) {
			continue
		}
		state.AchievedMilestones = append(state.AchievedMilestones, m.Days)
		granted := m.Days == freezeTokenMilestone
		if granted {
			state.FreezeTokens++
		}
		achieved = append(achieved, domain.StreakMilestoneAchieved{
			Milestone:     m,
			CurrentStreak: state.CurrentStreak,
			FreezeGranted: granted,
		})
	}
	return achieved
}

// StreakMessage returns the encouragement line for a streak length.
func StreakMessage(streak int) string {
	switch {
	case streak <= 0:
		return "Start your streak today!"
	case streak == 1:
		return "Great start! Keep it up!"
	case streak < 7:
		return fmt.Sprintf("Building momentum! %d days to Bronze Heart", 7-streak)
	case streak < 30:
		return fmt.Sprintf("Bronze achieved! %d days to Silver Heart", 30-streak)
	case streak < 100:
		return fmt.Sprintf("Silver achieved! %d days to Gold Heart", 100-streak)
	case streak < 365:
		return fmt.Sprintf("Gold achieved! %d days to Diamond Heart", 365-streak)
	default:
		return "Diamond Heart achieved! You're unstoppable!"
	}
}
