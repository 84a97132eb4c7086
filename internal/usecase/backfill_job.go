package usecase

import (
	"context"
	"errors"
	"fmt"

	"StagAlgo/pkg/queue"
)

const JobTypeBackfill = "candles.backfill"

// BackfillJob runs queued backfills.
type BackfillJob struct {
	uc *CandlesUseCase
}

func NewBackfillJob(uc *CandlesUseCase) *BackfillJob { return &BackfillJob{uc: uc} }

func (j *BackfillJob) Name() string { return "candle_backfill" }
func (j *BackfillJob) Type() string { return JobTypeBackfill }

func (j *BackfillJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[GetCandlesParams](payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("backfill payload: %w", err))
	}
	_, err = j.uc.Backfill(ctx, *p)
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrUnavailable) {
		return queue.Permanent(err)
	}
	return err
}

var _ queue.Job = (*BackfillJob)(nil)
