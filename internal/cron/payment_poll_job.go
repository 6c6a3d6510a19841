package cron

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nmtruong/fulfillment-backend/pkg/logger"
)

const (
	defaultPollAge   = 5 * time.Minute
	defaultPollBatch = 50
)

// pendingPoller is the reconciler surface this job drives.
type pendingPoller interface {
	PollPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PaymentPollJobParams configure the stale payment sweep.
type PaymentPollJobParams struct {
	Logger     *logger.Logger
	Reconciler pendingPoller
	PollAge    time.Duration
	PollBatch  int
}

type paymentPollJob struct {
	logg       *logger.Logger
	reconciler pendingPoller
	pollAge    time.Duration
	pollBatch  int
}

// NewPaymentPollJob builds the job that queries the provider for gateway
// payments whose notification never arrived. It is the safety net behind
// the webhook: both paths converge on the same reconciliation rule.
func NewPaymentPollJob(params PaymentPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	pollAge := params.PollAge
	if pollAge <= 0 {
		pollAge = defaultPollAge
	}
	pollBatch := params.PollBatch
	if pollBatch <= 0 {
		pollBatch = defaultPollBatch
	}
	return &paymentPollJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		pollAge:    pollAge,
		pollBatch:  pollBatch,
	}, nil
}

func (j *paymentPollJob) Name() string {
	return "payment-poll"
}

func (j *paymentPollJob) Run(ctx context.Context) error {
	applied, err := j.reconciler.PollPending(ctx, j.pollAge, j.pollBatch)
	if applied > 0 {
		j.logg.Info(j.logg.WithField(ctx, "applied", strconv.Itoa(applied)), "stale payments reconciled")
	}
	return err
}
