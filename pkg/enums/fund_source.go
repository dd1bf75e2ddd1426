package enums

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FundSource names one of the three spendable portfolio balances. The
// invested_capital balance is a destination only and has no FundSource value.
type FundSource string

const (
	FundSourceFreeCapital   FundSource = "free_capital"
	FundSourceProfits       FundSource = "profits"
	FundSourceReferralBonus FundSource = "referral_bonus"
)

var validFundSources = []FundSource{
	FundSourceFreeCapital,
	FundSourceProfits,
	FundSourceReferralBonus,
}

// FundSources lists the spendable sources in display order.
func FundSources() []FundSource {
	out := make([]FundSource, len(validFundSources))
	copy(out, validFundSources)
	return out
}

// String implements fmt.Stringer.
func (f FundSource) String() string {
	return string(f)
}

// IsValid reports whether the value is one of the spendable sources.
func (f FundSource) IsValid() bool {
	for _, candidate := range validFundSources {
		if candidate == f {
			return true
		}
	}
	return false
}

// Column returns the user_portfolios column backing the source. It panics on
// an invalid value so a bad source can never reach a SQL fragment.
func (f FundSource) Column() string {
	if !f.IsValid() {
		panic(fmt.Sprintf("enums: invalid fund source %q", string(f)))
	}
	return string(f)
}

// UnmarshalJSON rejects anything outside the closed set.
func (f *FundSource) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("fund source must be a string")
	}
	parsed, err := ParseFundSource(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFundSource converts raw input into a FundSource.
func ParseFundSource(value string) (FundSource, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validFundSources {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fund source %q", value)
}
