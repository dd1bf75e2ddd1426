package enums

import "fmt"

// OutboxAggregateType identifies the root entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateProject    OutboxAggregateType = "project"
	AggregateInvestment OutboxAggregateType = "investment"
	AggregateUser       OutboxAggregateType = "user"
	AggregateDeposit    OutboxAggregateType = "deposit_request"
	AggregateWithdrawal OutboxAggregateType = "withdrawal_request"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProject,
	AggregateInvestment,
	AggregateUser,
	AggregateDeposit,
	AggregateWithdrawal,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published from the outbox.
type OutboxEventType string

const (
	EventInvestmentPlaced         OutboxEventType = "investment_placed"
	EventProjectCancelled         OutboxEventType = "project_cancelled"
	EventProjectSold              OutboxEventType = "project_sold"
	EventReferralBonusDistributed OutboxEventType = "referral_bonus_distributed"
	EventDepositApproved          OutboxEventType = "deposit_approved"
	EventWithdrawalApproved       OutboxEventType = "withdrawal_approved"
	EventKYCStatusChanged         OutboxEventType = "kyc_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInvestmentPlaced,
	EventProjectCancelled,
	EventProjectSold,
	EventReferralBonusDistributed,
	EventDepositApproved,
	EventWithdrawalApproved,
	EventKYCStatusChanged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
