package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pawn-ledger/internal/domain/loan"
	"pawn-ledger/internal/domain/obligation"
	"pawn-ledger/internal/infrastructure/monitoring"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ loan.Repository = (*LoanRepository)(nil)

const loanColumns = `id, customer_name, collateral, principal, interest_rate, penalty_rate, initial_obligation, due_date, status, health, created_at, updated_at`

const paymentColumns = `id, loan_id, amount, paid_at, created_at`

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, apperrors.WrapDatabaseError(err, "could not begin transaction")
	}
	return tx, nil
}

func (r *LoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return apperrors.WrapDatabaseError(err, "could not commit transaction")
	}
	return nil
}

func (r *LoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return apperrors.WrapDatabaseError(err, "could not roll back transaction")
	}
	return nil
}

func (r *LoanRepository) CreateLoan(ctx context.Context, newLoan *loan.Loan) (*loan.Loan, error) {
	query := `
        INSERT INTO loans (customer_name, collateral, principal, interest_rate, penalty_rate, initial_obligation, due_date, status, health, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
        RETURNING ` + loanColumns
	status := "success"
	startTime := time.Now()

	created, err := scanLoan(r.db.QueryRow(ctx, query,
		newLoan.CustomerName, newLoan.Collateral, newLoan.Principal, newLoan.InterestRate,
		newLoan.PenaltyRate, newLoan.InitialObligation, newLoan.DueDate, newLoan.Status, newLoan.Health,
	))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("CreateLoan", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "error", err)
		return nil, translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID)
	return created, nil
}

func (r *LoanRepository) GetLoanByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	status := "success"
	startTime := time.Now()

	l, err := scanLoan(r.db.QueryRow(ctx, query, loanID))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", loanID, "error", err)
		return nil, apperrors.WrapDatabaseError(err, "could not load loan")
	}
	return l, nil
}

// GetLoanForUpdate locks the loan row until tx ends, serialising payments and
// reclassification of the same loan.
func (r *LoanRepository) GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	l, err := scanLoan(tx.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found for update", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock loan", "loan_id", loanID, "error", err)
		return nil, apperrors.WrapDatabaseError(err, "could not lock loan")
	}
	return l, nil
}

func (r *LoanRepository) GetPaymentsByLoanID(ctx context.Context, loanID int64) ([]loan.Payment, error) {
	status := "success"
	startTime := time.Now()

	payments, err := r.queryPayments(ctx, r.db, loanID)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetPaymentsByLoanID", status, time.Since(startTime))
	return payments, err
}

func (r *LoanRepository) GetPaymentsByLoanIDInTx(ctx context.Context, tx pgx.Tx, loanID int64) ([]loan.Payment, error) {
	return r.queryPayments(ctx, tx, loanID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *LoanRepository) queryPayments(ctx context.Context, q querier, loanID int64) ([]loan.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM loan_payments WHERE loan_id = $1 ORDER BY paid_at ASC, id ASC`

	rows, err := q.Query(ctx, query, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query loan payments", "loan_id", loanID, "error", err)
		return nil, apperrors.WrapDatabaseError(err, "could not query payments")
	}
	defer rows.Close()

	payments := make([]loan.Payment, 0)
	for rows.Next() {
		var p loan.Payment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.PaidAt, &p.CreatedAt); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan payment row", "loan_id", loanID, "error", err)
			return nil, apperrors.WrapDatabaseError(err, "could not read payment")
		}
		payments = append(payments, p)
	}

	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating payment rows", "loan_id", loanID, "error", err)
		return nil, apperrors.WrapDatabaseError(err, "could not read payments")
	}
	return payments, nil
}

func (r *LoanRepository) InsertPaymentInTx(ctx context.Context, tx pgx.Tx, payment *loan.Payment) (*loan.Payment, error) {
	query := `
        INSERT INTO loan_payments (loan_id, amount, paid_at, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING ` + paymentColumns

	var p loan.Payment
	err := tx.QueryRow(ctx, query, payment.LoanID, payment.Amount, payment.PaidAt).
		Scan(&p.ID, &p.LoanID, &p.Amount, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert payment", "loan_id", payment.LoanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "Payment recorded in DB", "loan_id", p.LoanID, "payment_id", p.ID)
	return &p, nil
}

func (r *LoanRepository) UpdateClassificationInTx(ctx context.Context, tx pgx.Tx, loanID int64, status obligation.LoanStatus, health obligation.InstallmentHealth) error {
	sql := `UPDATE loans SET status = $1, health = $2, updated_at = NOW() WHERE id = $3`
	cmdTag, err := tx.Exec(ctx, sql, status, health, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan classification", "loan_id", loanID, "status", status, "health", health, "error", err)
		return apperrors.WrapDatabaseError(err, "could not update loan classification")
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.ErrorContext(ctx, "Loan classification update affected zero rows", "loan_id", loanID)
		return fmt.Errorf("%w: loan classification update affected zero rows", apperrors.ErrDatabase)
	}
	r.logger.InfoContext(ctx, "Loan classification updated in DB", "loan_id", loanID, "new_status", status, "new_health", health)
	return nil
}

func (r *LoanRepository) GetOpenLoanIDs(ctx context.Context) ([]int64, error) {
	logCtx := r.logger.With(slog.String("operation", "GetOpenLoanIDs"))
	logCtx.DebugContext(ctx, "Attempting to get open loan IDs")

	query := `SELECT id FROM loans WHERE status <> $1 AND health <> $2 ORDER BY id`

	rows, err := r.db.Query(ctx, query, obligation.StatusCompleted, obligation.HealthLiquidated)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to query open loan IDs", slog.Any("error", err))
		return nil, apperrors.WrapDatabaseError(err, "could not list open loans")
	}
	defer rows.Close()

	loanIDs := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			logCtx.ErrorContext(ctx, "Failed to scan open loan ID row", slog.Any("error", err))
			return nil, apperrors.WrapDatabaseError(err, "could not read open loan")
		}
		loanIDs = append(loanIDs, id)
	}

	if err = rows.Err(); err != nil {
		logCtx.ErrorContext(ctx, "Error iterating open loan ID rows", slog.Any("error", err))
		return nil, apperrors.WrapDatabaseError(err, "could not list open loans")
	}

	logCtx.DebugContext(ctx, "Finished getting open loan IDs", slog.Int("count", len(loanIDs)))
	return loanIDs, nil
}

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	err := row.Scan(
		&l.ID, &l.CustomerName, &l.Collateral, &l.Principal, &l.InterestRate, &l.PenaltyRate,
		&l.InitialObligation, &l.DueDate, &l.Status, &l.Health, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !l.Status.Valid() || !l.Health.Valid() {
		return nil, fmt.Errorf("%w: loan %d has unknown status %q or health %q", apperrors.ErrDatabase, l.ID, l.Status, l.Health)
	}
	// due_date is a DATE; keep it a UTC calendar day whatever location the driver used.
	y, m, d := l.DueDate.UTC().Date()
	l.DueDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &l, nil
}

func translateDBError(err error, contextLogger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			contextLogger.Warn("Database foreign key violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrNotFound, pgErr.ConstraintName)
		case "23505":
			contextLogger.Warn("Database unique constraint violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.ConstraintName)
		case "23514":
			contextLogger.Warn("Database check constraint violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrValidation, pgErr.ConstraintName)
		}

		contextLogger.Error("PostgreSQL specific error", "code", pgErr.Code, "message", pgErr.Message, "detail", pgErr.Detail)
		return apperrors.WrapDatabaseError(err, "could not save record")
	}

	contextLogger.Error("Generic database error", "error", err)
	return apperrors.WrapDatabaseError(err, "could not save record")
}
