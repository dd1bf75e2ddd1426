package cron

import (
	"context"
	"fmt"

	"github.com/cipimmobiliare/cip-backend/pkg/logger"
)

// depositExpirer is satisfied by deposits.Service.
type depositExpirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// NewDepositExpiryJob expires bank transfer requests whose window has passed.
func NewDepositExpiryJob(logg *logger.Logger, expirer depositExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if expirer == nil {
		return nil, fmt.Errorf("deposits service required")
	}
	return &depositExpiryJob{logg: logg, expirer: expirer}, nil
}

type depositExpiryJob struct {
	logg    *logger.Logger
	expirer depositExpirer
}

func (j *depositExpiryJob) Name() string { return "deposit-expiry" }

func (j *depositExpiryJob) Run(ctx context.Context) error {
	expired, err := j.expirer.ExpirePending(ctx)
	if err != nil {
		return fmt.Errorf("deposit expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_expired", expired), "deposit expiry complete")
	return nil
}
