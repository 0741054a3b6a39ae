package loan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"pawn-ledger/internal/domain/obligation"
	"pawn-ledger/internal/event"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type TxMock struct {
	pgx.Tx
}

var tx pgx.Tx = &TxMock{}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateLoan(ctx context.Context, l *Loan) (*Loan, error) {
	args := m.Called(ctx, l)
	if created, ok := args.Get(0).(*Loan); ok {
		return created, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetLoanByID(ctx context.Context, loanID int64) (*Loan, error) {
	args := m.Called(ctx, loanID)
	if l, ok := args.Get(0).(*Loan); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetPaymentsByLoanID(ctx context.Context, loanID int64) ([]Payment, error) {
	args := m.Called(ctx, loanID)
	if payments, ok := args.Get(0).([]Payment); ok {
		return payments, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetOpenLoanIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]int64); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error) {
	args := m.Called(ctx, tx, loanID)
	if l, ok := args.Get(0).(*Loan); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetPaymentsByLoanIDInTx(ctx context.Context, tx pgx.Tx, loanID int64) ([]Payment, error) {
	args := m.Called(ctx, tx, loanID)
	if payments, ok := args.Get(0).([]Payment); ok {
		return payments, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) InsertPaymentInTx(ctx context.Context, tx pgx.Tx, payment *Payment) (*Payment, error) {
	args := m.Called(ctx, tx, payment)
	if p, ok := args.Get(0).(*Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateClassificationInTx(ctx context.Context, tx pgx.Tx, loanID int64, status obligation.LoanStatus, health obligation.InstallmentHealth) error {
	args := m.Called(ctx, tx, loanID, status, health)
	return args.Error(0)
}

func (m *MockRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if t, ok := args.Get(0).(pgx.Tx); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishLoanClassificationChanged(ctx context.Context, e event.LoanClassificationChangedEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testDefaults() Defaults {
	return Defaults{
		InterestRate: decimal.RequireFromString("0.10"),
		PenaltyRate:  decimal.RequireFromString("0.05"),
		TermDays:     30,
	}
}

func TestCreateLoan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 1, 14, 30, 0, 0, time.UTC)

	t.Run("applies configured defaults", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("CreateLoan", ctx, mock.MatchedBy(func(l *Loan) bool {
			return l.DueDate.Equal(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)) &&
				l.InterestRate.Equal(decimal.RequireFromString("0.10")) &&
				l.PenaltyRate.Equal(decimal.RequireFromString("0.05")) &&
				l.InitialObligation.Equal(decimal.NewFromInt(1_100_000))
		})).Return(&Loan{ID: 11}, nil)

		created, err := svc.CreateLoan(ctx, CreateLoanParams{
			CustomerName: "Siti Rahma",
			Collateral:   "Gold bracelet 12g",
			Principal:    million,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(11), created.ID)
		repo.AssertExpectations(t)
	})

	t.Run("explicit terms override defaults", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		zero := decimal.Zero

		repo.On("CreateLoan", ctx, mock.MatchedBy(func(l *Loan) bool {
			return l.DueDate.Equal(dueDate) && l.InterestRate.IsZero() && l.InitialObligation.Equal(million)
		})).Return(&Loan{ID: 12}, nil)

		_, err := svc.CreateLoan(ctx, CreateLoanParams{
			CustomerName: "Siti Rahma",
			Collateral:   "Gold bracelet 12g",
			Principal:    million,
			InterestRate: &zero,
			DueDate:      dueDate,
		})

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("returns validation error without touching the repository", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger)

		_, err := svc.CreateLoan(ctx, CreateLoanParams{CustomerName: "A", Collateral: "B", Principal: decimal.Zero})

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		repo.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything)
	})

	t.Run("wraps repository failure", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		repo.On("CreateLoan", ctx, mock.Anything).Return(nil, apperrors.ErrDatabase)

		_, err := svc.CreateLoan(ctx, CreateLoanParams{CustomerName: "A", Collateral: "B", Principal: million})

		assert.ErrorIs(t, err, apperrors.ErrInternalServer)
	})
}

func TestGetObligation(t *testing.T) {
	ctx := context.Background()

	t.Run("computes obligation at explicit asOf", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger)

		repo.On("GetLoanByID", ctx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanID", ctx, int64(7)).Return([]Payment{
			{LoanID: 7, Amount: decimal.NewFromInt(500_000), PaidAt: dueDate.AddDate(0, 0, 1)},
		}, nil)

		ob, err := svc.GetObligation(ctx, 7, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1_050_000).Equal(ob.Outstanding))
		assert.True(t, decimal.NewFromInt(550_000).Equal(ob.Remaining))
		assert.Equal(t, obligation.StatusExtended, ob.Status)
		assert.Equal(t, obligation.HealthHealthy, ob.Health)
	})

	t.Run("uses the service clock when asOf is zero", func(t *testing.T) {
		repo := new(MockRepository)
		now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("GetLoanByID", ctx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanID", ctx, int64(7)).Return([]Payment{}, nil)

		ob, err := svc.GetObligation(ctx, 7, time.Time{})

		require.NoError(t, err)
		assert.Equal(t, now, ob.AsOf)
		assert.True(t, decimal.NewFromInt(1_200_000).Equal(ob.Outstanding))
		assert.Equal(t, obligation.HealthAtRisk, ob.Health)
	})

	t.Run("maps missing loan to not found", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger)
		repo.On("GetLoanByID", ctx, int64(99)).Return(nil, apperrors.ErrNotFound)

		_, err := svc.GetObligation(ctx, 99, dueDate)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		repo.AssertNotCalled(t, "GetPaymentsByLoanID", mock.Anything, mock.Anything)
	})
}

func TestMakePayment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	t.Run("records partial payment without changing flags", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusExtended

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("InsertPaymentInTx", ctx, tx, mock.MatchedBy(func(p *Payment) bool {
			return p.LoanID == 7 && p.PaidAt.Equal(now) && p.Amount.Equal(decimal.NewFromInt(500_000))
		})).Return(&Payment{ID: 1, LoanID: 7, Amount: decimal.NewFromInt(500_000), PaidAt: now}, nil)
		repo.On("CommitTx", ctx, tx).Return(nil)

		payment, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(500_000))

		require.NoError(t, err)
		assert.Equal(t, int64(1), payment.ID)
		repo.AssertNotCalled(t, "UpdateClassificationInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RollbackTx", mock.Anything, mock.Anything)
		pub.AssertNotCalled(t, "PublishLoanClassificationChanged", mock.Anything, mock.Anything)
	})

	t.Run("completes loan when balance is settled and publishes change", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusExtended

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{
			{ID: 1, LoanID: 7, Amount: decimal.NewFromInt(500_000), PaidAt: now.AddDate(0, 0, -1)},
		}, nil)
		repo.On("InsertPaymentInTx", ctx, tx, mock.Anything).Return(&Payment{ID: 2, LoanID: 7, Amount: decimal.NewFromInt(550_000), PaidAt: now}, nil)
		repo.On("UpdateClassificationInTx", ctx, tx, int64(7), obligation.StatusCompleted, obligation.HealthHealthy).Return(nil)
		repo.On("CommitTx", ctx, tx).Return(nil)
		pub.On("PublishLoanClassificationChanged", ctx, mock.MatchedBy(func(e event.LoanClassificationChangedEvent) bool {
			return e.LoanID == 7 && e.OldStatus == "EXTENDED" && e.NewStatus == "COMPLETED"
		})).Return(nil)

		_, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(550_000))

		require.NoError(t, err)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("publish failure does not fail the payment", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("InsertPaymentInTx", ctx, tx, mock.Anything).Return(&Payment{ID: 3, LoanID: 7, Amount: decimal.NewFromInt(1_050_000), PaidAt: now}, nil)
		repo.On("UpdateClassificationInTx", ctx, tx, int64(7), obligation.StatusCompleted, obligation.HealthHealthy).Return(nil)
		repo.On("CommitTx", ctx, tx).Return(nil)
		pub.On("PublishLoanClassificationChanged", ctx, mock.Anything).Return(errors.New("broker down"))

		_, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(1_050_000))

		assert.NoError(t, err)
	})

	t.Run("rejects non-positive amount before opening a transaction", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger)

		_, err := svc.MakePayment(ctx, 7, decimal.Zero)

		assert.ErrorIs(t, err, apperrors.ErrInvalidPaymentAmount)
		repo.AssertNotCalled(t, "BeginTx", mock.Anything)
	})

	t.Run("rejects payment on completed loan and rolls back", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusCompleted

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(10))

		assert.ErrorIs(t, err, apperrors.ErrLoanFullyPaid)
		repo.AssertCalled(t, "RollbackTx", ctx, tx)
	})

	t.Run("rejects payment on liquidated loan", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Health = obligation.HealthLiquidated

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(10))

		assert.ErrorIs(t, err, apperrors.ErrLoanLiquidated)
	})

	t.Run("returns not found for unknown loan", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger)

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(404)).Return(nil, pgx.ErrNoRows)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.MakePayment(ctx, 404, decimal.NewFromInt(10))

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("rolls back when insert fails", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("InsertPaymentInTx", ctx, tx, mock.Anything).Return(nil, apperrors.ErrDatabase)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.MakePayment(ctx, 7, decimal.NewFromInt(10))

		assert.ErrorIs(t, err, apperrors.ErrInternalServer)
		repo.AssertCalled(t, "RollbackTx", ctx, tx)
		repo.AssertNotCalled(t, "CommitTx", mock.Anything, mock.Anything)
	})

	t.Run("keeps check violation as a validation error", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		rejected := fmt.Errorf("%w: loan_payments_amount_check", apperrors.ErrValidation)

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("InsertPaymentInTx", ctx, tx, mock.Anything).Return(nil, rejected)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.MakePayment(ctx, 7, decimal.RequireFromString("0.01"))

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.NotErrorIs(t, err, apperrors.ErrInternalServer)
		repo.AssertCalled(t, "RollbackTx", ctx, tx)
	})
}

func TestLiquidate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	t.Run("marks loan liquidated and publishes", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusExtended
		l.Health = obligation.HealthAtRisk

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("UpdateClassificationInTx", ctx, tx, int64(7), obligation.StatusExtended, obligation.HealthLiquidated).Return(nil)
		repo.On("CommitTx", ctx, tx).Return(nil)
		pub.On("PublishLoanClassificationChanged", ctx, mock.MatchedBy(func(e event.LoanClassificationChangedEvent) bool {
			return e.NewHealth == "LIQUIDATED" && e.OldHealth == "AT_RISK" && e.AsOf.Equal(now)
		})).Return(nil)

		require.NoError(t, svc.Liquidate(ctx, 7))
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("is idempotent for already liquidated loan", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Health = obligation.HealthLiquidated

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("CommitTx", ctx, tx).Return(nil)

		require.NoError(t, svc.Liquidate(ctx, 7))
		repo.AssertNotCalled(t, "UpdateClassificationInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		pub.AssertNotCalled(t, "PublishLoanClassificationChanged", mock.Anything, mock.Anything)
	})

	t.Run("refuses to liquidate completed loan", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusCompleted

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		err := svc.Liquidate(ctx, 7)
		assert.ErrorIs(t, err, apperrors.ErrLoanFullyPaid)
	})
}

func TestRefreshClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and publishes changed flags", func(t *testing.T) {
		repo := new(MockRepository)
		pub := new(MockPublisher)
		now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		svc := NewLoanService(repo, pub, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{
			{LoanID: 7, Amount: decimal.NewFromInt(100_000), PaidAt: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)},
		}, nil)
		repo.On("UpdateClassificationInTx", ctx, tx, int64(7), obligation.StatusExtended, obligation.HealthAtRisk).Return(nil)
		repo.On("CommitTx", ctx, tx).Return(nil)
		pub.On("PublishLoanClassificationChanged", ctx, mock.Anything).Return(nil)

		change, err := svc.RefreshClassification(ctx, 7)

		require.NoError(t, err)
		assert.True(t, change.Changed())
		assert.Equal(t, obligation.HealthAtRisk, change.NewHealth)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("skips update when nothing changed", func(t *testing.T) {
		repo := new(MockRepository)
		now := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("CommitTx", ctx, tx).Return(nil)

		change, err := svc.RefreshClassification(ctx, 7)

		require.NoError(t, err)
		assert.False(t, change.Changed())
		repo.AssertNotCalled(t, "UpdateClassificationInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rolls back on update failure", func(t *testing.T) {
		repo := new(MockRepository)
		now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(testLoan(), nil)
		repo.On("GetPaymentsByLoanIDInTx", ctx, tx, int64(7)).Return([]Payment{}, nil)
		repo.On("UpdateClassificationInTx", ctx, tx, int64(7), mock.Anything, mock.Anything).Return(apperrors.ErrDatabase)
		repo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := svc.RefreshClassification(ctx, 7)

		assert.ErrorIs(t, err, apperrors.ErrInternalServer)
		repo.AssertCalled(t, "RollbackTx", ctx, tx)
	})

	t.Run("leaves closed loans alone", func(t *testing.T) {
		repo := new(MockRepository)
		now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
		svc := NewLoanService(repo, nil, testDefaults(), logger, WithClock(fixedClock(now)))
		l := testLoan()
		l.Status = obligation.StatusCompleted

		repo.On("BeginTx", ctx).Return(tx, nil)
		repo.On("GetLoanForUpdate", ctx, tx, int64(7)).Return(l, nil)
		repo.On("CommitTx", ctx, tx).Return(nil)

		change, err := svc.RefreshClassification(ctx, 7)

		require.NoError(t, err)
		assert.False(t, change.Changed())
		assert.Equal(t, obligation.StatusCompleted, change.NewStatus)
		repo.AssertNotCalled(t, "GetPaymentsByLoanIDInTx", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "UpdateClassificationInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDefaultClockIsUTC(t *testing.T) {
	svc := NewLoanService(new(MockRepository), nil, testDefaults(), logger).(*loanServiceImpl)

	assert.Equal(t, time.UTC, svc.clock().Location())
}
