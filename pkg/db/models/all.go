package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// sqlite-backed tests and local runs.
func All() []any {
	return []any{
		&User{},
		&Portfolio{},
		&Project{},
		&Investment{},
		&PortfolioTransaction{},
		&ReferralBonus{},
		&DepositRequest{},
		&WithdrawalRequest{},
		&KYCRequest{},
		&AdminNotification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
