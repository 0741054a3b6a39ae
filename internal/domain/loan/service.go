package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pawn-ledger/internal/domain/obligation"
	"pawn-ledger/internal/event"
	"pawn-ledger/internal/infrastructure/monitoring"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type LoanService interface {
	CreateLoan(ctx context.Context, params CreateLoanParams) (*Loan, error)

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)

	// GetObligation evaluates the loan at asOf; a zero asOf means now.
	GetObligation(ctx context.Context, loanID int64, asOf time.Time) (*Obligation, error)

	MakePayment(ctx context.Context, loanID int64, amount Money) (*Payment, error)

	Liquidate(ctx context.Context, loanID int64) error

	RefreshClassification(ctx context.Context, loanID int64) (*ClassificationChange, error)
}

// CreateLoanParams leaves rates nil and DueDate zero to take the service defaults.
type CreateLoanParams struct {
	CustomerName string
	Collateral   string
	Principal    Money
	InterestRate *decimal.Decimal
	PenaltyRate  *decimal.Decimal
	DueDate      time.Time
}

type Defaults struct {
	InterestRate decimal.Decimal
	PenaltyRate  decimal.Decimal
	TermDays     int
}

type Option func(*loanServiceImpl)

func WithClock(clock func() time.Time) Option {
	return func(s *loanServiceImpl) {
		s.clock = clock
	}
}

type loanServiceImpl struct {
	repo      Repository
	publisher event.EventPublisher
	defaults  Defaults
	clock     func() time.Time
	logger    *slog.Logger
}

var _ LoanService = (*loanServiceImpl)(nil)

// NewLoanService builds the service. publisher may be nil, in which case
// classification changes are only persisted.
func NewLoanService(r Repository, publisher event.EventPublisher, defaults Defaults, logger *slog.Logger, opts ...Option) LoanService {
	if r == nil {
		panic("loan repository cannot be nil")
	}
	s := &loanServiceImpl{
		repo:      r,
		publisher: publisher,
		defaults:  defaults,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    logger.With("component", "LoanService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *loanServiceImpl) CreateLoan(ctx context.Context, params CreateLoanParams) (*Loan, error) {
	s.logger.InfoContext(ctx, "Creating new loan")

	interestRate := s.defaults.InterestRate
	if params.InterestRate != nil {
		interestRate = *params.InterestRate
	}
	penaltyRate := s.defaults.PenaltyRate
	if params.PenaltyRate != nil {
		penaltyRate = *params.PenaltyRate
	}
	dueDate := params.DueDate
	if dueDate.IsZero() {
		y, m, d := s.clock().UTC().Date()
		dueDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, s.defaults.TermDays)
	}

	newLoan, err := NewLoan(params.CustomerName, params.Collateral, params.Principal, interestRate, penaltyRate, dueDate)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejected loan request", "error", err)
		return nil, err
	}

	created, err := s.repo.CreateLoan(ctx, newLoan)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save loan", "error", err)
		return nil, repoError("failed to save loan", err)
	}

	s.logger.InfoContext(ctx, "Loan created successfully", "loanID", created.ID, "dueDate", created.DueDate)
	return created, nil
}

func (s *loanServiceImpl) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	s.logger.InfoContext(ctx, "Getting loan details", "loanID", loanID)
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, s.loanLookupError(ctx, loanID, err)
	}

	payments, err := s.repo.GetPaymentsByLoanID(ctx, loanID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get loan payments", "loanID", loanID, "error", err)
		return nil, repoError(fmt.Sprintf("failed to get payments for loan %d", loanID), err)
	}
	l.Payments = payments
	return l, nil
}

func (s *loanServiceImpl) GetObligation(ctx context.Context, loanID int64, asOf time.Time) (*Obligation, error) {
	if asOf.IsZero() {
		asOf = s.clock()
	}

	l, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	ob := l.ObligationAt(asOf)
	s.logger.DebugContext(ctx, "Computed loan obligation", "loanID", loanID, "asOf", asOf, "remaining", ob.Remaining.String())
	return &ob, nil
}

func (s *loanServiceImpl) MakePayment(ctx context.Context, loanID int64, amount Money) (payment *Payment, err error) {
	s.logger.InfoContext(ctx, "Making payment", "loanID", loanID, "amount", amount.String())
	if !amount.IsPositive() {
		monitoring.RecordPayment("failure_amount")
		return nil, fmt.Errorf("%w: payment amount must be greater than zero", apperrors.ErrInvalidPaymentAmount)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		monitoring.RecordPayment("failure_internal")
		return nil, repoError("could not begin transaction", err)
	}

	var change ClassificationChange
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic occurred during payment processing", "loanID", loanID, "error", p)
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		}
		monitoring.RecordPayment(paymentOutcome(err))
		if err != nil {
			s.logger.ErrorContext(ctx, "Rolling back payment transaction", "loanID", loanID, "error", err)
			_ = s.repo.RollbackTx(ctx, tx)
			return
		}
		s.publishChange(ctx, change)
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, s.loanLookupError(ctx, loanID, err)
	}
	if l.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: loan %d", apperrors.ErrLoanFullyPaid, loanID)
	}
	if l.Health.IsTerminal() {
		return nil, fmt.Errorf("%w: loan %d", apperrors.ErrLoanLiquidated, loanID)
	}

	l.Payments, err = s.repo.GetPaymentsByLoanIDInTx(ctx, tx, loanID)
	if err != nil {
		return nil, repoError("could not load payments", err)
	}

	now := s.clock()
	payment, err = s.repo.InsertPaymentInTx(ctx, tx, &Payment{LoanID: loanID, Amount: amount, PaidAt: now})
	if err != nil {
		return nil, repoError("could not record payment", err)
	}
	l.Payments = append(l.Payments, *payment)

	change = l.Reclassify(now)
	if change.Changed() {
		if err = s.repo.UpdateClassificationInTx(ctx, tx, loanID, change.NewStatus, change.NewHealth); err != nil {
			return nil, repoError("could not update loan classification", err)
		}
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return nil, repoError("could not commit transaction", err)
	}

	s.logger.InfoContext(ctx, "Payment processed successfully", "loanID", loanID, "amount", amount.String(), "status", change.NewStatus)
	return payment, nil
}

func (s *loanServiceImpl) Liquidate(ctx context.Context, loanID int64) (err error) {
	s.logger.InfoContext(ctx, "Liquidating loan collateral", "loanID", loanID)
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return repoError("could not begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return s.loanLookupError(ctx, loanID, err)
	}
	if l.Health.IsTerminal() {
		s.logger.InfoContext(ctx, "Loan already liquidated", "loanID", loanID)
		return s.repo.CommitTx(ctx, tx)
	}
	if l.Status.IsTerminal() {
		return fmt.Errorf("%w: loan %d cannot be liquidated", apperrors.ErrLoanFullyPaid, loanID)
	}

	change := ClassificationChange{
		LoanID:    loanID,
		OldStatus: l.Status,
		NewStatus: l.Status,
		OldHealth: l.Health,
		NewHealth: obligation.HealthLiquidated,
		AsOf:      s.clock(),
	}
	if err = s.repo.UpdateClassificationInTx(ctx, tx, loanID, change.NewStatus, change.NewHealth); err != nil {
		return repoError("could not liquidate loan", err)
	}
	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return repoError("could not commit transaction", err)
	}

	s.publishChange(ctx, change)
	return nil
}

func (s *loanServiceImpl) RefreshClassification(ctx context.Context, loanID int64) (change *ClassificationChange, err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, repoError("could not begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, s.loanLookupError(ctx, loanID, err)
	}
	if !l.IsOpen() {
		s.logger.DebugContext(ctx, "Loan closed, classification left as is", "loanID", loanID, "status", l.Status, "health", l.Health)
		unchanged := ClassificationChange{
			LoanID:    loanID,
			OldStatus: l.Status,
			NewStatus: l.Status,
			OldHealth: l.Health,
			NewHealth: l.Health,
			AsOf:      s.clock(),
		}
		if err = s.repo.CommitTx(ctx, tx); err != nil {
			return nil, repoError("could not commit transaction", err)
		}
		return &unchanged, nil
	}
	l.Payments, err = s.repo.GetPaymentsByLoanIDInTx(ctx, tx, loanID)
	if err != nil {
		return nil, repoError("could not load payments", err)
	}

	c := l.Reclassify(s.clock())
	monitoring.RecordClassification("status", string(c.NewStatus))
	monitoring.RecordClassification("health", string(c.NewHealth))

	if c.Changed() {
		if err = s.repo.UpdateClassificationInTx(ctx, tx, loanID, c.NewStatus, c.NewHealth); err != nil {
			return nil, repoError("could not update loan classification", err)
		}
	}
	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return nil, repoError("could not commit transaction", err)
	}

	s.publishChange(ctx, c)
	return &c, nil
}

func (s *loanServiceImpl) publishChange(ctx context.Context, c ClassificationChange) {
	if !c.Changed() {
		return
	}
	if c.OldStatus != c.NewStatus {
		monitoring.RecordClassificationChange("status", string(c.NewStatus))
	}
	if c.OldHealth != c.NewHealth {
		monitoring.RecordClassificationChange("health", string(c.NewHealth))
	}

	logCtx := s.logger.With("loanID", c.LoanID, "status", c.NewStatus, "health", c.NewHealth)
	if s.publisher == nil {
		logCtx.DebugContext(ctx, "No event publisher configured, skipping classification event")
		return
	}

	err := s.publisher.PublishLoanClassificationChanged(ctx, event.LoanClassificationChangedEvent{
		LoanID:    c.LoanID,
		OldStatus: string(c.OldStatus),
		NewStatus: string(c.NewStatus),
		OldHealth: string(c.OldHealth),
		NewHealth: string(c.NewHealth),
		AsOf:      c.AsOf,
		Timestamp: s.clock(),
	})
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to publish classification change", slog.Any("error", err))
		return
	}
	logCtx.InfoContext(ctx, "Published classification change")
}

func (s *loanServiceImpl) loanLookupError(ctx context.Context, loanID int64, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		s.logger.WarnContext(ctx, "Loan not found", "loanID", loanID)
		return fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
	}
	s.logger.ErrorContext(ctx, "Failed to get loan", "loanID", loanID, "error", err)
	return repoError(fmt.Sprintf("failed to get loan %d", loanID), err)
}

// repoError keeps translated client errors (bad input, conflicts, missing references)
// visible to the HTTP layer and marks everything else as internal.
func repoError(msg string, err error) error {
	if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrInternalServer, msg, err)
}

func paymentOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrLoanFullyPaid):
		return "failure_fully_paid"
	case errors.Is(err, apperrors.ErrLoanLiquidated):
		return "failure_liquidated"
	case errors.Is(err, apperrors.ErrNotFound):
		return "failure_not_found"
	case errors.Is(err, apperrors.ErrValidation):
		return "failure_amount"
	default:
		return "failure_internal"
	}
}
