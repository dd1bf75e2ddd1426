package enums

import "fmt"

// WithdrawalMethod selects the payout rail.
type WithdrawalMethod string

const (
	WithdrawalMethodUSDT WithdrawalMethod = "usdt"
	WithdrawalMethodBank WithdrawalMethod = "bank"
)

var validWithdrawalMethods = []WithdrawalMethod{
	WithdrawalMethodUSDT,
	WithdrawalMethodBank,
}

// IsValid reports whether the value is a known WithdrawalMethod.
func (w WithdrawalMethod) IsValid() bool {
	for _, candidate := range validWithdrawalMethods {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWithdrawalMethod converts raw input into a WithdrawalMethod.
func ParseWithdrawalMethod(value string) (WithdrawalMethod, error) {
	for _, candidate := range validWithdrawalMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid withdrawal method %q", value)
}
