package enums

import "fmt"

// NotificationType classifies events delivered through the notification sink.
type NotificationType string

const (
	NotificationTypeGracePeriodStarted NotificationType = "grace_period_started"
	NotificationTypeCampaignLocked     NotificationType = "campaign_locked"
	NotificationTypeCampaignCancelled  NotificationType = "campaign_cancelled"
	NotificationTypePaymentReminder    NotificationType = "payment_reminder"
	NotificationTypePaymentFailed      NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeGracePeriodStarted,
	NotificationTypeCampaignLocked,
	NotificationTypeCampaignCancelled,
	NotificationTypePaymentReminder,
	NotificationTypePaymentFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
