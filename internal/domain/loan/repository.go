package loan

import (
	"context"

	"pawn-ledger/internal/domain/obligation"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	CreateLoan(ctx context.Context, loan *Loan) (*Loan, error)

	GetLoanByID(ctx context.Context, loanID int64) (*Loan, error)

	GetPaymentsByLoanID(ctx context.Context, loanID int64) ([]Payment, error)

	GetOpenLoanIDs(ctx context.Context) ([]int64, error)

	GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error)

	GetPaymentsByLoanIDInTx(ctx context.Context, tx pgx.Tx, loanID int64) ([]Payment, error)

	InsertPaymentInTx(ctx context.Context, tx pgx.Tx, payment *Payment) (*Payment, error)

	UpdateClassificationInTx(ctx context.Context, tx pgx.Tx, loanID int64, status obligation.LoanStatus, health obligation.InstallmentHealth) error

	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
