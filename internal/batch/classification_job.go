package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"pawn-ledger/internal/domain/loan"
	"pawn-ledger/internal/infrastructure/monitoring"
	"pawn-ledger/internal/pkg/apperrors"

	"golang.org/x/sync/errgroup"
)

const jobName = "RefreshClassification"

type OpenLoanLister interface {
	GetOpenLoanIDs(ctx context.Context) ([]int64, error)
}

type Reclassifier interface {
	RefreshClassification(ctx context.Context, loanID int64) (*loan.ClassificationChange, error)
}

// RefreshClassificationJob re-evaluates the status and health flags of every open
// loan so that loans nobody touches still move to EXTENDED or AT_RISK on time.
type RefreshClassificationJob struct {
	loans   OpenLoanLister
	service Reclassifier
	workers int
	logger  *slog.Logger
}

func NewRefreshClassificationJob(loans OpenLoanLister, service Reclassifier, workers int, logger *slog.Logger) *RefreshClassificationJob {
	if loans == nil || service == nil || logger == nil {
		panic("RefreshClassificationJob dependencies cannot be nil")
	}
	if workers <= 0 {
		workers = 1
	}
	return &RefreshClassificationJob{
		loans:   loans,
		service: service,
		workers: workers,
		logger:  logger.With("job", jobName),
	}
}

func (j *RefreshClassificationJob) Run(ctx context.Context) (err error) {
	startTime := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		monitoring.RecordBatchRun(jobName, status, time.Since(startTime))
	}()

	j.logger.InfoContext(ctx, "Starting loan classification refresh job.")

	loanIDs, err := j.loans.GetOpenLoanIDs(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to get open loan IDs, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to get open loans: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched open loan IDs.", slog.Int("count", len(loanIDs)))

	if len(loanIDs) == 0 {
		j.logger.InfoContext(ctx, "No open loans found to process.")
		return nil
	}

	var processed, changed, skipped, failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, loanID := range loanIDs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			logCtx := j.logger.With(slog.Int64("loanID", loanID))

			change, refreshErr := j.service.RefreshClassification(ctx, loanID)
			if refreshErr != nil {
				if errors.Is(refreshErr, apperrors.ErrNotFound) {
					logCtx.WarnContext(ctx, "Loan disappeared before it could be refreshed", slog.Any("error", refreshErr))
					skipped.Add(1)
					return nil
				}
				logCtx.ErrorContext(ctx, "Failed to refresh loan classification", slog.Any("error", refreshErr))
				failed.Add(1)
				return nil
			}

			processed.Add(1)
			if change.Changed() {
				changed.Add(1)
				logCtx.InfoContext(ctx, "Loan classification changed",
					slog.String("old_status", string(change.OldStatus)),
					slog.String("new_status", string(change.NewStatus)),
					slog.String("old_health", string(change.OldHealth)),
					slog.String("new_health", string(change.NewHealth)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("total_open_loans", len(loanIDs)),
		slog.Int("loans_processed", int(processed.Load())),
		slog.Int("loans_changed", int(changed.Load())),
		slog.Int("loans_skipped", int(skipped.Load())),
		slog.Int("errors_encountered", int(failed.Load())),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		summaryLog.WarnContext(ctx, "Loan classification refresh job interrupted.", slog.Any("error", ctxErr))
		return fmt.Errorf("job interrupted: %w", ctxErr)
	}
	if n := failed.Load(); n > 0 {
		summaryLog.WarnContext(ctx, "Loan classification refresh job finished with errors.")
		return fmt.Errorf("job completed with %d errors", n)
	}
	summaryLog.InfoContext(ctx, "Loan classification refresh job finished successfully.")
	return nil
}
