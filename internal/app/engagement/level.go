package engagement

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

const (
	// MaxAward caps a single XP award.
	MaxAward int64 = 1_000_000

	// MaxTotalXP caps accumulated XP, far below the int64 range.
	MaxTotalXP int64 = 1 << 50
)

// LevelService manages the XP, level and tier of one profile.
// The step from level L to L+1 costs L*100 + (L-1)*50 XP, so cumulative
// requirements run 0, 100, 350, 750, 1300...
// Not safe for concurrent use; the Manager serializes access per profile.
type LevelService struct {
	rec   recorder
	pub   domain.Publisher
	log   *zap.Logger
	state domain.ExperienceState
}

// NewLevelService restores the profile's experience from the store, or starts
// at level 1 when nothing usable is stored. store and pub may be nil.
func NewLevelService(ctx context.Context, profileID string, store domain.Store, pub domain.Publisher, logger *zap.Logger) *LevelService {
	l := &LevelService{
		rec: newRecorder(store, profileID, domain.RecordExperience, logger),
		pub: pub,
	}
	l.log = l.rec.log

	var stored domain.ExperienceState
	if l.rec.load(ctx, &stored) && stored.TotalXP >= 0 && stored.TotalXP <= MaxTotalXP {
		l.state.TotalXP = stored.TotalXP
	}
	l.recompute()
	return l
}

// XPForLevel returns the cumulative XP required to reach a given level.
// R(L) = (L-1)(75L-50).
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return (l - 1) * (75*l - 50)
}

// LevelForXP returns the largest level whose requirement is within xp.
// Starts from the closed-form root of R(L) = xp and corrects float error.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	level := int((125 + math.Sqrt(625+300*float64(xp))) / 150)
	if level < 1 {
		level = 1
	}
	for level > 1 && XPForLevel(level) > xp {
		level--
	}
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// State returns a copy of the current experience.
func (l *LevelService) State() domain.ExperienceState {
	return l.state
}

// Tier returns the display metadata of the current tier.
func (l *LevelService) Tier() domain.TierInfo {
	return TierInfoFor(l.state.CurrentTier)
}

// View returns the experience with next-level requirement, progress and tier.
func (l *LevelService) View() domain.LevelView {
	return domain.LevelView{
		ExperienceState: l.state,
		NextLevelXP:     l.XPForNextLevel(),
		Progress:        l.XPProgressToNextLevel(),
		Tier:            l.Tier(),
	}
}

// AddXP adds experience points and persists the result.
// Returns the LevelUp raised, or nil if the level did not change.
func (l *LevelService) AddXP(ctx context.Context, amount int64, action domain.XPAction) (*domain.LevelUp, error) {
	if !action.Valid() {
		metrics.XPRejected.WithLabelValues("unknown_action").Inc()
		return nil, domain.ErrUnknownAction
	}
	if amount <= 0 || amount > MaxAward || l.state.TotalXP > MaxTotalXP-amount {
		metrics.XPRejected.WithLabelValues("invalid_amount").Inc()
		return nil, domain.ErrInvalidAmount
	}

	oldLevel := l.state.CurrentLevel
	l.state.TotalXP += amount
	l.recompute()
	metrics.XPAwarded.WithLabelValues(string(action)).Add(float64(amount))

	var up *domain.LevelUp
	if l.state.CurrentLevel > oldLevel {
		up = &domain.LevelUp{
			NewLevel: l.state.CurrentLevel,
			NewTier:  l.state.CurrentTier,
			XPEarned: amount,
			Action:   action,
		}
		metrics.LevelUps.WithLabelValues(string(up.NewTier)).Inc()
		l.log.Info("level up",
			zap.Int("level", up.NewLevel),
			zap.String("tier", string(up.NewTier)),
			zap.String("action", string(action)))
	}

	l.rec.save(ctx, l.state)

	if up != nil && l.pub != nil {
		l.pub.Publish(ctx, domain.Event{
			Type:      domain.EventLevelUp,
			ProfileID: l.rec.profileID,
			LevelUp:   up,
		})
	}
	return up, nil
}

// XPForNextLevel returns the cumulative XP required for the next level.
func (l *LevelService) XPForNextLevel() int64 {
	return XPForLevel(l.state.CurrentLevel + 1)
}

// XPProgressToNextLevel returns progress through the current level in [0, 1].
func (l *LevelService) XPProgressToNextLevel() float64 {
	return ProgressForXP(l.state.TotalXP)
}

// ProgressForXP returns the fraction of the current level completed at xp.
func ProgressForXP(xp int64) float64 {
	level := LevelForXP(xp)
	floor := XPForLevel(level)
	span := XPForLevel(level+1) - floor
	if span <= 0 {
		return 1
	}
	progress := float64(xp-floor) / float64(span)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return progress
}

func (l *LevelService) recompute() {
	l.state.CurrentLevel = LevelForXP(l.state.TotalXP)
	l.state.CurrentTier = TierForLevel(l.state.CurrentLevel)
}

// ─── Tiers ──────────────────────────────────────────────────────────────────

var tierTable = []domain.TierInfo{
	{
		Tier: domain.TierNewLove, Name: "New Love", MinLevel: 1, MaxLevel: 10,
		Icon: "💕", Color: "#FF6B35",
		Unlocks: []string{"Basic 5 gestures", "Touch history 7 days"},
	},
	{
		Tier: domain.TierDeepeningBond, Name: "Deepening Bond", MinLevel: 11, MaxLevel: 25,
		Icon: "💖", Color: "#B76E79",
		Unlocks: []string{"Custom gesture recorder", "Hairstyle customization", "Voice questions"},
	},
	{
		Tier: domain.TierStrongConnection, Name: "Strong Connection", MinLevel: 26, MaxLevel: 50,
		Icon: "💗", Color: "#8B0000",
		Unlocks: []string{"Nature haptic patterns", "Accessories", "Unlimited history"},
	},
	{
		Tier: domain.TierSoulmates, Name: "Soulmates", MinLevel: 51,
		Icon: "💝", Color: "#4A0E4E",
		Unlocks: []string{"All features", "Special anniversary animations", "Premium insights"},
	},
}

// TierForLevel maps a level to its tier. Every level maps to exactly one tier;
// anything beyond the bounded ranges is Soulmates.
func TierForLevel(level int) domain.Tier {
	for _, t := range tierTable {
		if t.MaxLevel != 0 && level <= t.MaxLevel {
			return t.Tier
		}
	}
	return domain.TierSoulmates
}

// TierInfoFor returns the display metadata of a tier.
func TierInfoFor(tier domain.Tier) domain.TierInfo {
	for _, t := range tierTable {
		if t.Tier == tier {
			return cloneTier(t)
		}
	}
	return cloneTier(tierTable[0])
}

// Tiers returns the full tier table in ascending order.
func Tiers() []domain.TierInfo {
	out := make([]domain.TierInfo, len(tierTable))
	for i, t := range tierTable {
		out[i] = cloneTier(t)
	}
	return out
}

func cloneTier(t domain.TierInfo) domain.TierInfo {
	t.Unlocks = append([]string(nil), t.Unlocks...)
	return t
}
