package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// NotificationService turns engagement events into stored notifications.
// Policy:
//   - At most MaxPerDay notifications per profile per day
//   - Nothing stored between QuietStart and QuietEnd (clock's zone)
//   - Only level ups, streak milestones and perfect days are celebrated
//
// Delivery to devices happens elsewhere; this service only records.
type NotificationService struct {
	store  domain.Store
	policy domain.NotificationPolicy
	clock  domain.Clock
	log    *zap.Logger
}

// NewNotificationService creates a notification service with default policy.
func NewNotificationService(store domain.Store, clock domain.Clock, logger *zap.Logger) *NotificationService {
	return NewNotificationServiceWithPolicy(store, domain.DefaultNotificationPolicy(), clock, logger)
}

// NewNotificationServiceWithPolicy creates a notification service with custom policy.
func NewNotificationServiceWithPolicy(store domain.Store, policy domain.NotificationPolicy, clock domain.Clock, logger *zap.Logger) *NotificationService {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:  store,
		policy: policy,
		clock:  clock,
		log:    logger.Named("notifications"),
	}
}

// Handle is a bus Subscriber.
func (n *NotificationService) Handle(ctx context.Context, ev domain.Event) {
	notif, ok := notificationFor(ev)
	if !ok {
		return
	}
	if _, err := n.Create(ctx, notif); err != nil {
		n.log.Warn("store notification",
			zap.String("profile", ev.ProfileID),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}

// Create stores a notification if policy allows it.
// Returns false (and no error) when the policy suppressed it.
func (n *NotificationService) Create(ctx context.Context, notif domain.Notification) (bool, error) {
	if notif.ProfileID == "" {
		return false, domain.ErrMissingProfile
	}
	now := n.clock.Now()

	if n.isQuietHour(now) {
		metrics.NotificationsSuppressed.WithLabelValues("quiet_hours").Inc()
		return false, nil
	}

	todayCount, err := n.store.NotificationCountSince(ctx, notif.ProfileID, startOfDay(now))
	if err != nil {
		return false, fmt.Errorf("count today: %w", err)
	}
	if todayCount >= n.policy.MaxPerDay {
		metrics.NotificationsSuppressed.WithLabelValues("daily_limit").Inc()
		return false, nil
	}

	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	notif.CreatedAt = now
	notif.Shown = false

	if err := n.store.InsertNotification(ctx, notif); err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(notif.Type)).Inc()
	return true, nil
}

// Pending returns unshown notifications, oldest first.
func (n *NotificationService) Pending(ctx context.Context, profileID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return n.store.ListPendingNotifications(ctx, profileID, limit)
}

// MarkShown marks a notification as shown.
func (n *NotificationService) MarkShown(ctx context.Context, profileID, id string) error {
	return n.store.MarkNotificationShown(ctx, profileID, id)
}

// TodayCount returns how many notifications were stored today.
func (n *NotificationService) TodayCount(ctx context.Context, profileID string) (int, error) {
	return n.store.NotificationCountSince(ctx, profileID, startOfDay(n.clock.Now()))
}

// Policy returns the current notification policy.
func (n *NotificationService) Policy() domain.NotificationPolicy {
	return n.policy
}

// isQuietHour returns true if the given time falls within quiet hours.
func (n *NotificationService) isQuietHour(t time.Time) bool {
	if n.policy.QuietStart == "" || n.policy.QuietEnd == "" {
		return false
	}
	startHour, startMin := parseHHMM(n.policy.QuietStart)
	endHour, endMin := parseHHMM(n.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 23:00 – 07:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// notificationFor renders the user-facing text of an event.
func notificationFor(ev domain.Event) (domain.Notification, bool) {
	notif := domain.Notification{ProfileID: ev.ProfileID, Type: ev.Type}
	switch {
	case ev.Type == domain.EventLevelUp && ev.LevelUp != nil:
		tier := TierInfoFor(ev.LevelUp.NewTier)
		notif.Title = fmt.Sprintf("Level %d reached!", ev.LevelUp.NewLevel)
		notif.Body = fmt.Sprintf("%s You're in %s.", tier.Icon, tier.Name)
	case ev.Type == domain.EventStreakMilestone && ev.Milestone != nil:
		m := ev.Milestone.Milestone
		notif.Title = fmt.Sprintf("%s %s unlocked!", m.Icon, m.Badge)
		notif.Body = fmt.Sprintf("%d perfect days in a row. Reward: %s", m.Days, m.Reward)
	case ev.Type == domain.EventPerfectDay && ev.PerfectDay != nil:
		notif.Title = "Perfect Day!"
		notif.Body = fmt.Sprintf("All goals closed. %s", StreakMessage(ev.PerfectDay.CurrentStreak))
	default:
		return domain.Notification{}, false
	}
	return notif, true
}
