package engagement_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/touchsync/touchsync/internal/app/engagement"
	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a settable domain.Clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) addDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
}

// recorder collects published events.
type recorder struct {
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// seed writes an engine record directly into the store.
func seed(t *testing.T, store domain.Store, profileID string, kind domain.RecordKind, version int, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	var rev int64
	if cur, err := store.LoadRecord(context.Background(), profileID, kind); err == nil {
		rev = cur.Revision
	}
	err = store.SaveRecords(context.Background(), domain.Record{
		ProfileID: profileID, Kind: kind, Version: version, Revision: rev, Data: data,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// brokenStore fails every operation.
type brokenStore struct {
	*memstore.Store
}

var errBroken = errors.New("disk on fire")

func (brokenStore) LoadRecord(context.Context, string, domain.RecordKind) (*domain.Record, error) {
	return nil, errBroken
}

func (brokenStore) SaveRecords(context.Context, ...domain.Record) error {
	return errBroken
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Formula Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestXPForLevel_Values(t *testing.T) {
	tests := []struct {
		level int
		xp    int64
	}{
		{0, 0},
		{1, 0},
		{2, 100},
		{3, 350},
		{4, 750},
		{5, 1300},
		{11, 7750},
	}
	for _, tt := range tests {
		if got := engagement.XPForLevel(tt.level); got != tt.xp {
			t.Errorf("XPForLevel(%d) = %d, want %d", tt.level, got, tt.xp)
		}
	}
}

// iterativeLevel walks the step costs one level at a time.
func iterativeLevel(xp int64) int {
	level := 1
	var cumulative int64
	for {
		step := int64(level)*100 + int64(level-1)*50
		if cumulative+step > xp {
			return level
		}
		cumulative += step
		level++
	}
}

func TestLevelForXP_MatchesIterativeDefinition(t *testing.T) {
	for level := 1; level <= 1200; level++ {
		r := engagement.XPForLevel(level)
		for _, xp := range []int64{r - 1, r, r + 1} {
			if xp < 0 {
				continue
			}
			want := iterativeLevel(xp)
			if got := engagement.LevelForXP(xp); got != want {
				t.Fatalf("LevelForXP(%d) = %d, want %d", xp, got, want)
			}
		}
		if got := engagement.LevelForXP(r); got != level {
			t.Fatalf("LevelForXP(R(%d)) = %d", level, got)
		}
	}
}

func TestLevelForXP_LargeValues(t *testing.T) {
	for _, xp := range []int64{1 << 30, 1 << 40, engagement.MaxTotalXP - 1, engagement.MaxTotalXP} {
		level := engagement.LevelForXP(xp)
		if engagement.XPForLevel(level) > xp || engagement.XPForLevel(level+1) <= xp {
			t.Errorf("LevelForXP(%d) = %d is not the bracketing level", xp, level)
		}
	}
}

func TestLevelForXP_NeverBelowOne(t *testing.T) {
	for _, xp := range []int64{-100, -1, 0, 1, 99} {
		if got := engagement.LevelForXP(xp); got != 1 {
			t.Errorf("LevelForXP(%d) = %d, want 1", xp, got)
		}
	}
}

func TestProgressForXP_Bounds(t *testing.T) {
	for _, xp := range []int64{0, 1, 50, 99, 100, 225, 349, 350, 123456, engagement.MaxTotalXP} {
		p := engagement.ProgressForXP(xp)
		if p < 0 || p > 1 {
			t.Errorf("ProgressForXP(%d) = %f, outside [0,1]", xp, p)
		}
	}
	if got := engagement.ProgressForXP(225); got != 0.5 {
		t.Errorf("ProgressForXP(225) = %f, want 0.5", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Tier Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestTierForLevel(t *testing.T) {
	tests := []struct {
		level int
		tier  domain.Tier
	}{
		{1, domain.TierNewLove},
		{10, domain.TierNewLove},
		{11, domain.TierDeepeningBond},
		{25, domain.TierDeepeningBond},
		{26, domain.TierStrongConnection},
		{50, domain.TierStrongConnection},
		{51, domain.TierSoulmates},
		{100, domain.TierSoulmates},
		{101, domain.TierSoulmates},
		{100000, domain.TierSoulmates},
	}
	for _, tt := range tests {
		if got := engagement.TierForLevel(tt.level); got != tt.tier {
			t.Errorf("TierForLevel(%d) = %s, want %s", tt.level, got, tt.tier)
		}
	}
}

func TestTiers_ContiguousRanges(t *testing.T) {
	tiers := engagement.Tiers()
	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(tiers))
	}
	if tiers[0].MinLevel != 1 {
		t.Errorf("first tier must start at level 1, got %d", tiers[0].MinLevel)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinLevel != tiers[i-1].MaxLevel+1 {
			t.Errorf("gap between %s and %s", tiers[i-1].Tier, tiers[i].Tier)
		}
	}
	if tiers[3].MaxLevel != 0 {
		t.Error("last tier must be open-ended")
	}
	for _, tier := range tiers {
		if tier.Icon == "" || tier.Color == "" || len(tier.Unlocks) == 0 {
			t.Errorf("tier %s missing display metadata", tier.Tier)
		}
	}

	// Returned slices are copies.
	tiers[0].Unlocks[0] = "hacked"
	if engagement.TierInfoFor(domain.TierNewLove).Unlocks[0] == "hacked" {
		t.Error("tier table mutated through returned copy")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// LevelService Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevelService_Fresh(t *testing.T) {
	svc := engagement.NewLevelService(context.Background(), "p1", memstore.New(), nil, nil)
	want := domain.ExperienceState{TotalXP: 0, CurrentLevel: 1, CurrentTier: domain.TierNewLove}
	if diff := cmp.Diff(want, svc.State()); diff != "" {
		t.Errorf("fresh state mismatch (-want +got):\n%s", diff)
	}
	if svc.XPForNextLevel() != 100 {
		t.Errorf("next level xp = %d, want 100", svc.XPForNextLevel())
	}
	if svc.XPProgressToNextLevel() != 0 {
		t.Errorf("progress = %f, want 0", svc.XPProgressToNextLevel())
	}
}

func TestLevelService_LevelUpScenario(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	svc := engagement.NewLevelService(ctx, "p1", memstore.New(), pub, nil)

	up, err := svc.AddXP(ctx, 10, domain.ActionSendTouch)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if up != nil {
		t.Errorf("unexpected level up at 10 xp: %+v", up)
	}
	if s := svc.State(); s.TotalXP != 10 || s.CurrentLevel != 1 {
		t.Errorf("after 10 xp: %+v", s)
	}

	up, err = svc.AddXP(ctx, 90, domain.ActionSendTouch)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	want := &domain.LevelUp{NewLevel: 2, NewTier: domain.TierNewLove, XPEarned: 90, Action: domain.ActionSendTouch}
	if diff := cmp.Diff(want, up); diff != "" {
		t.Errorf("level up mismatch (-want +got):\n%s", diff)
	}
	if s := svc.State(); s.TotalXP != 100 || s.CurrentLevel != 2 {
		t.Errorf("after 100 xp: %+v", s)
	}

	events := pub.ofType(domain.EventLevelUp)
	if len(events) != 1 {
		t.Fatalf("expected 1 level-up event, got %d", len(events))
	}
	if events[0].ProfileID != "p1" || events[0].LevelUp.NewLevel != 2 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestLevelService_MultiLevelJumpEmitsOnce(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	svc := engagement.NewLevelService(ctx, "p1", nil, pub, nil)

	up, err := svc.AddXP(ctx, 7750, domain.ActionStreakMilestone)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if up == nil || up.NewLevel != 11 || up.NewTier != domain.TierDeepeningBond {
		t.Errorf("expected jump to level 11 deepening bond, got %+v", up)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected exactly one event, got %d", len(pub.events))
	}
}

func TestLevelService_RejectsInvalidAwards(t *testing.T) {
	ctx := context.Background()
	svc := engagement.NewLevelService(ctx, "p1", nil, nil, nil)

	for _, amount := range []int64{0, -1, -500, engagement.MaxAward + 1} {
		if _, err := svc.AddXP(ctx, amount, domain.ActionSendTouch); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("AddXP(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := svc.AddXP(ctx, 10, domain.XPAction("hug")); !errors.Is(err, domain.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
	if svc.State().TotalXP != 0 {
		t.Errorf("rejected awards changed state: %+v", svc.State())
	}
}

func TestLevelService_RejectsOverflowPastCap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, "p1", domain.RecordExperience, 1, domain.ExperienceState{TotalXP: engagement.MaxTotalXP - 5})

	svc := engagement.NewLevelService(ctx, "p1", store, nil, nil)
	if _, err := svc.AddXP(ctx, 10, domain.ActionSendTouch); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount near cap, got %v", err)
	}
	if _, err := svc.AddXP(ctx, 5, domain.ActionSendTouch); err != nil {
		t.Errorf("award up to the cap: %v", err)
	}
}

func TestLevelService_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	svc := engagement.NewLevelService(ctx, "p1", store, nil, nil)
	_, _ = svc.AddXP(ctx, 400, domain.ActionPerfectDay)

	reloaded := engagement.NewLevelService(ctx, "p1", store, nil, nil)
	if diff := cmp.Diff(svc.State(), reloaded.State()); diff != "" {
		t.Errorf("reloaded state mismatch (-want +got):\n%s", diff)
	}

	other := engagement.NewLevelService(ctx, "p2", store, nil, nil)
	if other.State().TotalXP != 0 {
		t.Error("profiles must not share experience")
	}
}

func TestLevelService_DerivesLevelFromStoredXP(t *testing.T) {
	store := memstore.New()
	// Stale level and tier in the record are ignored.
	seed(t, store, "p1", domain.RecordExperience, 1, domain.ExperienceState{
		TotalXP: 350, CurrentLevel: 40, CurrentTier: domain.TierSoulmates,
	})
	svc := engagement.NewLevelService(context.Background(), "p1", store, nil, nil)
	if s := svc.State(); s.CurrentLevel != 3 || s.CurrentTier != domain.TierNewLove {
		t.Errorf("expected level 3 new love, got %+v", s)
	}
}

func TestLevelService_UnreadableRecordFallsBack(t *testing.T) {
	store := memstore.New()
	_ = store.SaveRecords(context.Background(), domain.Record{
		ProfileID: "p1", Kind: domain.RecordExperience, Version: 1, Data: []byte("{not json"),
	})
	seed(t, store, "p2", domain.RecordExperience, 99, domain.ExperienceState{TotalXP: 500})
	seed(t, store, "p3", domain.RecordExperience, 1, domain.ExperienceState{TotalXP: -20})

	for _, id := range []string{"p1", "p2", "p3"} {
		svc := engagement.NewLevelService(context.Background(), id, store, nil, nil)
		if svc.State().TotalXP != 0 || svc.State().CurrentLevel != 1 {
			t.Errorf("%s: expected defaults, got %+v", id, svc.State())
		}
	}
}

func TestLevelService_SaveFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()
	svc := engagement.NewLevelService(ctx, "p1", brokenStore{memstore.New()}, nil, nil)
	up, err := svc.AddXP(ctx, 100, domain.ActionSendTouch)
	if err != nil {
		t.Fatalf("save failure must not fail the award: %v", err)
	}
	if up == nil || svc.State().TotalXP != 100 {
		t.Errorf("in-memory state not updated: %+v", svc.State())
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestStreak_Scenario(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc := engagement.NewStreakService(ctx, "p1", memstore.New(), nil, clock, nil)

	if res := svc.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakStarted || res.Streak.CurrentStreak != 1 {
		t.Fatalf("day 1: %+v", res)
	}

	clock.now = clock.now.Add(5 * time.Hour)
	if res := svc.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakSameDay || res.Streak.CurrentStreak != 1 {
		t.Errorf("same day repeat: %+v", res)
	}

	clock.addDays(1)
	if res := svc.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakExtended || res.Streak.CurrentStreak != 2 {
		t.Errorf("day 2: %+v", res)
	}
}

func TestStreak_NotPerfectDayIgnored(t *testing.T) {
	ctx := context.Background()
	svc := engagement.NewStreakService(ctx, "p1", nil, nil, newClock(), nil)
	res := svc.CheckDailyStreak(ctx, false)
	if res.Outcome != domain.StreakIgnored {
		t.Errorf("expected ignored, got %s", res.Outcome)
	}
	if svc.State().CurrentStreak != 0 || svc.State().LastPerfectDay != nil {
		t.Errorf("state changed: %+v", svc.State())
	}
}

func seededStreak(t *testing.T, clock *fakeClock, tokens, streak int) (*engagement.StreakService, *recorder) {
	t.Helper()
	store := memstore.New()
	last := time.Date(clock.now.Year(), clock.now.Month(), clock.now.Day(), 0, 0, 0, 0, time.UTC)
	seed(t, store, "p1", domain.RecordStreak, 1, domain.StreakState{
		CurrentStreak:  streak,
		LongestStreak:  streak,
		FreezeTokens:   tokens,
		LastPerfectDay: &last,
	})
	pub := &recorder{}
	return engagement.NewStreakService(context.Background(), "p1", store, pub, clock, nil), pub
}

func TestStreak_FreezeTokenBridgesOneMissedDay(t *testing.T) {
	clock := newClock()
	svc, _ := seededStreak(t, clock, 1, 5)

	clock.addDays(2)
	res := svc.CheckDailyStreak(context.Background(), true)
	if res.Outcome != domain.StreakFrozen {
		t.Errorf("expected frozen, got %s", res.Outcome)
	}
	if res.Streak.CurrentStreak != 6 || res.Streak.FreezeTokens != 0 || res.Streak.FreezeTokensUsed != 1 {
		t.Errorf("unexpected state: %+v", res.Streak)
	}
}

func TestStreak_ResetWithoutToken(t *testing.T) {
	clock := newClock()
	svc, _ := seededStreak(t, clock, 0, 5)

	clock.addDays(2)
	res := svc.CheckDailyStreak(context.Background(), true)
	if res.Outcome != domain.StreakReset || res.Streak.CurrentStreak != 1 {
		t.Errorf("expected reset to 1, got %+v", res)
	}
	if res.Streak.LongestStreak != 5 {
		t.Errorf("longest streak = %d, want 5", res.Streak.LongestStreak)
	}
}

func TestStreak_TokenDoesNotBridgeTwoMissedDays(t *testing.T) {
	clock := newClock()
	svc, _ := seededStreak(t, clock, 2, 5)

	clock.addDays(3)
	res := svc.CheckDailyStreak(context.Background(), true)
	if res.Outcome != domain.StreakReset || res.Streak.CurrentStreak != 1 || res.Streak.FreezeTokens != 2 {
		t.Errorf("expected reset keeping tokens, got %+v", res)
	}
}

func TestStreak_ClockSkewIsNoOp(t *testing.T) {
	clock := newClock()
	svc, _ := seededStreak(t, clock, 0, 4)
	before := svc.State()

	clock.addDays(-3)
	res := svc.CheckDailyStreak(context.Background(), true)
	if res.Outcome != domain.StreakClockSkew {
		t.Errorf("expected clock_skew, got %s", res.Outcome)
	}
	if diff := cmp.Diff(before, svc.State()); diff != "" {
		t.Errorf("state changed on skew (-want +got):\n%s", diff)
	}
}

func TestStreak_SevenDayMilestoneOnce(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	pub := &recorder{}
	svc := engagement.NewStreakService(ctx, "p1", memstore.New(), pub, clock, nil)

	var res engagement.StreakResult
	for day := 0; day < 7; day++ {
		res = svc.CheckDailyStreak(ctx, true)
		clock.addDays(1)
	}
	if len(res.Milestones) != 1 || res.Milestones[0].Milestone.Days != 7 || !res.Milestones[0].FreezeGranted {
		t.Fatalf("expected bronze milestone on day 7, got %+v", res.Milestones)
	}
	if s := svc.State(); s.FreezeTokens != 1 || !cmp.Equal(s.AchievedMilestones, []int{7}) {
		t.Errorf("after day 7: %+v", s)
	}

	// Break the streak and climb past 7 again.
	clock.addDays(5)
	for day := 0; day < 8; day++ {
		svc.CheckDailyStreak(ctx, true)
		clock.addDays(1)
	}
	milestones := pub.ofType(domain.EventStreakMilestone)
	if len(milestones) != 1 {
		t.Errorf("expected exactly one milestone event, got %d", len(milestones))
	}
	if svc.State().FreezeTokens != 1 {
		t.Errorf("freeze token granted twice: %d", svc.State().FreezeTokens)
	}
}

func TestStreak_MilestonesAfterReloadCatchUp(t *testing.T) {
	clock := newClock()
	// A stored streak already past 30 with no recorded milestones earns both on the next extension.
	svc, pub := seededStreak(t, clock, 0, 31)
	clock.addDays(1)
	res := svc.CheckDailyStreak(context.Background(), true)

	var days []int
	for _, m := range res.Milestones {
		days = append(days, m.Milestone.Days)
	}
	if !cmp.Equal(days, []int{7, 30}) {
		t.Errorf("milestones = %v, want [7 30] in ascending order", days)
	}
	if len(pub.events) != 2 {
		t.Errorf("expected 2 events, got %d", len(pub.events))
	}
	if svc.State().FreezeTokens != 1 {
		t.Errorf("only the 7-day milestone grants a token, got %d", svc.State().FreezeTokens)
	}
}

func TestStreak_DSTTransitionCountsCalendarDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ctx := context.Background()
	// 2025-03-09 is the spring-forward day in New York: only 23 hours long.
	clock := &fakeClock{now: time.Date(2025, 3, 8, 23, 30, 0, 0, loc)}
	svc := engagement.NewStreakService(ctx, "p1", nil, nil, clock, nil)
	svc.CheckDailyStreak(ctx, true)

	clock.now = time.Date(2025, 3, 9, 23, 30, 0, 0, loc)
	if res := svc.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakExtended {
		t.Errorf("expected extended across DST, got %s", res.Outcome)
	}
	clock.now = time.Date(2025, 3, 10, 0, 15, 0, 0, loc)
	if res := svc.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakExtended || res.Streak.CurrentStreak != 3 {
		t.Errorf("expected streak 3 shortly after midnight, got %+v", res)
	}
}

func TestStreak_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clock := newClock()

	svc := engagement.NewStreakService(ctx, "p1", store, nil, clock, nil)
	svc.CheckDailyStreak(ctx, true)
	clock.addDays(1)
	svc.CheckDailyStreak(ctx, true)

	reloaded := engagement.NewStreakService(ctx, "p1", store, nil, clock, nil)
	if diff := cmp.Diff(svc.State(), reloaded.State()); diff != "" {
		t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
	}
	// Same day after reload is still idempotent.
	if res := reloaded.CheckDailyStreak(ctx, true); res.Outcome != domain.StreakSameDay {
		t.Errorf("expected same_day after reload, got %s", res.Outcome)
	}
}

func TestStreak_CorruptMilestonesFallBack(t *testing.T) {
	store := memstore.New()
	seed(t, store, "p1", domain.RecordStreak, 1, domain.StreakState{CurrentStreak: 3, AchievedMilestones: []int{30, 7}})
	svc := engagement.NewStreakService(context.Background(), "p1", store, nil, newClock(), nil)
	if svc.State().CurrentStreak != 0 {
		t.Errorf("expected defaults for unordered milestones, got %+v", svc.State())
	}
}

func TestStreakMessage(t *testing.T) {
	tests := []struct {
		streak int
		want   string
	}{
		{0, "Start your streak today!"},
		{1, "Great start! Keep it up!"},
		{2, "Building momentum! 5 days to Bronze Heart"},
		{6, "Building momentum! 1 days to Bronze Heart"},
		{7, "Bronze achieved! 23 days to Silver Heart"},
		{29, "Bronze achieved! 1 days to Silver Heart"},
		{30, "Silver achieved! 70 days to Gold Heart"},
		{100, "Gold achieved! 265 days to Diamond Heart"},
		{364, "Gold achieved! 1 days to Diamond Heart"},
		{365, "Diamond Heart achieved! You're unstoppable!"},
		{1000, "Diamond Heart achieved! You're unstoppable!"},
	}
	for _, tt := range tests {
		if got := engagement.StreakMessage(tt.streak); got != tt.want {
			t.Errorf("StreakMessage(%d) = %q, want %q", tt.streak, got, tt.want)
		}
	}
}

func TestNextMilestone(t *testing.T) {
	m, ok := engagement.NextMilestone(7)
	if !ok || m.Days != 30 || m.Badge != "Silver Heart" {
		t.Errorf("next after 7 = %+v", m)
	}
	if _, ok := engagement.NextMilestone(365); ok {
		t.Error("no milestone after diamond")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Daily Goals Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestGoals_TouchGoalStopsAtTarget(t *testing.T) {
	ctx := context.Background()
	g := engagement.NewGoalsService(ctx, "p1", nil, newClock(), domain.DefaultGoalTargets(), nil)

	earned := 0
	for i := 0; i < 8; i++ {
		if g.RecordTouchSent(ctx) {
			earned++
		}
	}
	if earned != 5 {
		t.Errorf("expected 5 rewarded touches, got %d", earned)
	}
	if v := g.View(); v.Touches != 5 || !v.TouchComplete {
		t.Errorf("touch goal: %+v", v)
	}
}

func TestGoals_QualityCrossingOnce(t *testing.T) {
	ctx := context.Background()
	g := engagement.NewGoalsService(ctx, "p1", nil, newClock(), domain.DefaultGoalTargets(), nil)

	steps := []struct {
		seconds  int
		crossed  bool
		progress int
	}{
		{20, false, 20},
		{10, false, 20}, // shorter touch keeps the day's best
		{75, true, 60},
		{90, false, 60},
	}
	for _, s := range steps {
		crossed, err := g.RecordQualityTouch(ctx, s.seconds)
		if err != nil {
			t.Fatalf("quality %d: %v", s.seconds, err)
		}
		if crossed != s.crossed || g.View().QualitySeconds != s.progress {
			t.Errorf("quality %ds: crossed=%v progress=%d, want %v/%d",
				s.seconds, crossed, g.View().QualitySeconds, s.crossed, s.progress)
		}
	}
	if _, err := g.RecordQualityTouch(ctx, -1); !errors.Is(err, domain.ErrInvalidGoal) {
		t.Errorf("expected ErrInvalidGoal, got %v", err)
	}
}

func TestGoals_ConnectionPercentage(t *testing.T) {
	ctx := context.Background()
	g := engagement.NewGoalsService(ctx, "p1", nil, newClock(), domain.DefaultGoalTargets(), nil)
	if v := g.View(); v.ConnectionPercentage != 0 {
		t.Errorf("empty day = %f, want 0", v.ConnectionPercentage)
	}

	for i := 0; i < 5; i++ {
		g.RecordTouchSent(ctx)
	}
	// One goal complete plus a third of the averaged partial progress.
	want := 33.33 + (1.0/3.0)*33.33
	if got := g.View().ConnectionPercentage; got < want-0.001 || got > want+0.001 {
		t.Errorf("one goal = %f, want %f", got, want)
	}

	for i := 0; i < 3; i++ {
		g.RecordResponse(ctx)
	}
	_, _ = g.RecordQualityTouch(ctx, 60)
	v := g.View()
	if v.ConnectionPercentage != 100 || !v.PerfectDay {
		t.Errorf("all goals: %+v", v)
	}
	if v.ConnectionMessage != "Your bond is unbreakable today! 💝" {
		t.Errorf("message = %q", v.ConnectionMessage)
	}
}

func TestGoals_ClaimPerfectDayOncePerDay(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	g := engagement.NewGoalsService(ctx, "p1", memstore.New(), clock, domain.GoalTargets{Touches: 1, Responses: 1, QualitySeconds: 1}, nil)

	if g.ClaimPerfectDay(ctx) {
		t.Error("claimed before goals complete")
	}
	g.RecordTouchSent(ctx)
	g.RecordResponse(ctx)
	_, _ = g.RecordQualityTouch(ctx, 5)

	if !g.ClaimPerfectDay(ctx) {
		t.Fatal("expected first claim to succeed")
	}
	if g.ClaimPerfectDay(ctx) {
		t.Error("second claim on the same day succeeded")
	}
}

func TestGoals_ResetOnNewDay(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clock := newClock()
	g := engagement.NewGoalsService(ctx, "p1", store, clock, domain.DefaultGoalTargets(), nil)
	g.RecordTouchSent(ctx)
	g.RecordResponse(ctx)

	reloaded := engagement.NewGoalsService(ctx, "p1", store, clock, domain.DefaultGoalTargets(), nil)
	if v := reloaded.View(); v.Touches != 1 || v.Responses != 1 {
		t.Errorf("same-day reload lost progress: %+v", v)
	}

	clock.addDays(1)
	if v := g.View(); v.Touches != 0 || v.Responses != 0 || v.PerfectDayAwarded {
		t.Errorf("expected fresh day, got %+v", v)
	}
	nextDay := engagement.NewGoalsService(ctx, "p1", store, clock, domain.DefaultGoalTargets(), nil)
	if v := nextDay.View(); v.Touches != 0 {
		t.Errorf("yesterday's progress restored: %+v", v)
	}
}

func TestConnectionMessage(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "Your bond needs attention 💙"},
		{25, "Your bond needs attention 💙"},
		{40, "You're connecting nicely 💜"},
		{70, "Your bond is strong 💖"},
		{99, "Your bond is very strong 💗"},
		{100, "Your bond is unbreakable today! 💝"},
	}
	for _, tt := range tests {
		if got := engagement.ConnectionMessage(tt.pct); got != tt.want {
			t.Errorf("ConnectionMessage(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestBus_RegistrationOrderAndPanicRecovery(t *testing.T) {
	clock := newClock()
	bus := engagement.NewBus(clock, nil)

	var order []string
	bus.Subscribe(func(_ context.Context, ev domain.Event) { order = append(order, "first") })
	bus.Subscribe(func(_ context.Context, ev domain.Event) { panic("boom") })
	bus.Subscribe(func(_ context.Context, ev domain.Event) {
		order = append(order, "third")
		if ev.ID == "" || !ev.OccurredAt.Equal(clock.now) {
			t.Errorf("event not stamped: %+v", ev)
		}
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventLevelUp, ProfileID: "p1"})
	if !cmp.Equal(order, []string{"first", "third"}) {
		t.Errorf("delivery order = %v", order)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestNotification_DailyLimit(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := engagement.NewNotificationServiceWithPolicy(store, domain.NotificationPolicy{MaxPerDay: 2}, newClock(), nil)

	created := 0
	for i := 0; i < 4; i++ {
		ok, err := svc.Create(ctx, domain.Notification{ProfileID: "p1", Type: domain.EventLevelUp, Title: "Level up"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if ok {
			created++
		}
	}
	if created != 2 {
		t.Errorf("expected 2 created under the daily cap, got %d", created)
	}

	// The cap is per profile.
	if ok, _ := svc.Create(ctx, domain.Notification{ProfileID: "p2", Type: domain.EventLevelUp}); !ok {
		t.Error("another profile was suppressed by p1's cap")
	}
}

func TestNotification_QuietHours(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 7, 1, 23, 30, 0, 0, time.UTC)}
	svc := engagement.NewNotificationService(memstore.New(), clock, nil)

	if ok, _ := svc.Create(ctx, domain.Notification{ProfileID: "p1", Type: domain.EventPerfectDay}); ok {
		t.Error("notification stored during quiet hours")
	}
	clock.now = time.Date(2025, 7, 2, 6, 59, 0, 0, time.UTC)
	if ok, _ := svc.Create(ctx, domain.Notification{ProfileID: "p1", Type: domain.EventPerfectDay}); ok {
		t.Error("notification stored before quiet hours end")
	}
	clock.now = time.Date(2025, 7, 2, 7, 0, 0, 0, time.UTC)
	if ok, _ := svc.Create(ctx, domain.Notification{ProfileID: "p1", Type: domain.EventPerfectDay}); !ok {
		t.Error("notification suppressed after quiet hours")
	}
}

func TestNotification_HandleRendersEvents(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := engagement.NewNotificationService(store, newClock(), nil)

	bronze, _ := engagement.MilestoneFor(7)
	svc.Handle(ctx, domain.Event{Type: domain.EventLevelUp, ProfileID: "p1",
		LevelUp: &domain.LevelUp{NewLevel: 11, NewTier: domain.TierDeepeningBond}})
	svc.Handle(ctx, domain.Event{Type: domain.EventStreakMilestone, ProfileID: "p1",
		Milestone: &domain.StreakMilestoneAchieved{Milestone: bronze, CurrentStreak: 7}})
	svc.Handle(ctx, domain.Event{Type: domain.EventPerfectDay, ProfileID: "p1"}) // missing payload

	pending, err := svc.Pending(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(pending))
	}
	if pending[0].Title != "Level 11 reached!" {
		t.Errorf("level title = %q", pending[0].Title)
	}
	if pending[1].Title != "🥉 Bronze Heart unlocked!" {
		t.Errorf("milestone title = %q", pending[1].Title)
	}

	if err := svc.MarkShown(ctx, "p1", pending[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = svc.Pending(ctx, "p1", 10)
	if len(pending) != 1 {
		t.Errorf("expected 1 pending after mark, got %d", len(pending))
	}
}
