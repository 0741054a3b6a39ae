package loan

import (
	"strings"
	"time"

	"pawn-ledger/internal/domain/obligation"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type Money = decimal.Decimal

// Loan is a pawn transaction: the customer pledges Collateral against Principal and
// owes InitialObligation by DueDate.
type Loan struct {
	ID                int64
	CustomerName      string
	Collateral        string
	Principal         Money
	InterestRate      decimal.Decimal
	PenaltyRate       decimal.Decimal
	InitialObligation Money
	DueDate           time.Time
	Status            obligation.LoanStatus
	Health            obligation.InstallmentHealth
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Payments          []Payment
}

// Payment is a single installment paid against a loan.
type Payment struct {
	ID        int64
	LoanID    int64
	Amount    Money
	PaidAt    time.Time
	CreatedAt time.Time
}

// Obligation is what the engine reports for one loan at one instant.
type Obligation struct {
	LoanID      int64
	AsOf        time.Time
	Outstanding Money
	Paid        Money
	Remaining   Money
	Status      obligation.LoanStatus
	Health      obligation.InstallmentHealth
}

type ClassificationChange struct {
	LoanID    int64
	OldStatus obligation.LoanStatus
	NewStatus obligation.LoanStatus
	OldHealth obligation.InstallmentHealth
	NewHealth obligation.InstallmentHealth
	AsOf      time.Time
}

func (c ClassificationChange) Changed() bool {
	return c.OldStatus != c.NewStatus || c.OldHealth != c.NewHealth
}

func NewLoan(customerName, collateral string, principal, interestRate, penaltyRate decimal.Decimal, dueDate time.Time) (*Loan, error) {
	customerName = strings.TrimSpace(customerName)
	collateral = strings.TrimSpace(collateral)

	if customerName == "" {
		return nil, apperrors.NewValidationError("customerName", "must not be empty")
	}
	if collateral == "" {
		return nil, apperrors.NewValidationError("collateral", "must not be empty")
	}
	if !principal.IsPositive() {
		return nil, apperrors.NewValidationError("principal", "must be greater than zero")
	}
	if interestRate.IsNegative() {
		return nil, apperrors.NewValidationError("interestRate", "must not be negative")
	}
	if penaltyRate.IsNegative() {
		return nil, apperrors.NewValidationError("penaltyRate", "must not be negative")
	}
	if dueDate.IsZero() {
		return nil, apperrors.NewValidationError("dueDate", "must be set")
	}

	y, m, d := dueDate.UTC().Date()
	dueDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	return &Loan{
		CustomerName:      customerName,
		Collateral:        collateral,
		Principal:         principal,
		InterestRate:      interestRate,
		PenaltyRate:       penaltyRate,
		InitialObligation: principal.Add(principal.Mul(interestRate)).Round(2),
		DueDate:           dueDate,
		Status:            obligation.StatusActive,
		Health:            obligation.HealthHealthy,
	}, nil
}

func (l *Loan) Terms() obligation.LoanTerms {
	return obligation.LoanTerms{
		InitialObligation: l.InitialObligation,
		DueDate:           l.DueDate,
		PenaltyRate:       l.PenaltyRate,
		Principal:         l.Principal,
	}
}

// ObligationAt evaluates the loan against its stored flags and l.Payments.
func (l *Loan) ObligationAt(asOf time.Time) Obligation {
	payments := obligationPayments(l.Payments)
	terms := l.Terms()

	outstanding := obligation.ComputeOutstandingPrincipal(terms, asOf)
	return Obligation{
		LoanID:      l.ID,
		AsOf:        asOf,
		Outstanding: outstanding,
		Paid:        obligation.TotalPaid(l.ID, payments),
		Remaining:   obligation.ComputeRemainingBalance(terms, l.ID, payments, asOf),
		Status:      obligation.ComputeLoanStatus(l.Status, l.DueDate, asOf),
		Health:      obligation.ComputeInstallmentHealth(l.Health, l.DueDate, payments, asOf),
	}
}

// Reclassify recomputes status and health at asOf. A loan whose remaining balance is
// settled becomes COMPLETED.
func (l *Loan) Reclassify(asOf time.Time) ClassificationChange {
	ob := l.ObligationAt(asOf)
	newStatus := ob.Status
	if !ob.Remaining.IsPositive() && !l.Health.IsTerminal() {
		newStatus = obligation.StatusCompleted
	}
	return ClassificationChange{
		LoanID:    l.ID,
		OldStatus: l.Status,
		NewStatus: newStatus,
		OldHealth: l.Health,
		NewHealth: ob.Health,
		AsOf:      asOf,
	}
}

func (l *Loan) IsOpen() bool {
	return !l.Status.IsTerminal() && !l.Health.IsTerminal()
}

func obligationPayments(payments []Payment) []obligation.Payment {
	out := make([]obligation.Payment, 0, len(payments))
	for _, p := range payments {
		out = append(out, obligation.Payment{LoanID: p.LoanID, Amount: p.Amount, PaidAt: p.PaidAt})
	}
	return out
}
