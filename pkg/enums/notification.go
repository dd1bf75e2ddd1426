package enums

import "fmt"

// NotificationType classifies admin inbox entries.
type NotificationType string

const (
	NotificationTypeNewInvestment     NotificationType = "new_investment"
	NotificationTypeDepositRequest    NotificationType = "deposit_request"
	NotificationTypeWithdrawalRequest NotificationType = "withdrawal_request"
	NotificationTypeKYCSubmitted      NotificationType = "kyc_submitted"
	NotificationTypeProjectFunded     NotificationType = "project_funded"
	NotificationTypeProjectCancelled  NotificationType = "project_cancelled"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeNewInvestment,
	NotificationTypeDepositRequest,
	NotificationTypeWithdrawalRequest,
	NotificationTypeKYCSubmitted,
	NotificationTypeProjectFunded,
	NotificationTypeProjectCancelled,
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
