// Package obligation computes what a borrower owes on a pawn loan and how the loan and
// its installments are classified at a given instant.
//
// Every function is pure: callers pass the evaluation instant explicitly and the
// package never reads the wall clock.
package obligation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// ShortLateWindowDays is the lateness, in whole days, still charged a single
	// penalty period at the loan's own penalty rate.
	ShortLateWindowDays = 10

	// AtRiskAfterMonths is the number of calendar months without a payment that an
	// installment may go before it is flagged at risk.
	AtRiskAfterMonths = 1
)

// MonthlyLatePenaltyRate is charged on the principal for every calendar month past the
// due date once the short-late window is over. It does not use LoanTerms.PenaltyRate.
var MonthlyLatePenaltyRate = decimal.RequireFromString("0.1")

type LoanStatus string

const (
	StatusActive    LoanStatus = "ACTIVE"
	StatusExtended  LoanStatus = "EXTENDED"
	StatusCompleted LoanStatus = "COMPLETED"
)

func (s LoanStatus) IsTerminal() bool {
	return s == StatusCompleted
}

func (s LoanStatus) Valid() bool {
	switch s {
	case StatusActive, StatusExtended, StatusCompleted:
		return true
	}
	return false
}

type InstallmentHealth string

const (
	HealthHealthy    InstallmentHealth = "HEALTHY"
	HealthAtRisk     InstallmentHealth = "AT_RISK"
	HealthLiquidated InstallmentHealth = "LIQUIDATED"
)

func (h InstallmentHealth) IsTerminal() bool {
	return h == HealthLiquidated
}

func (h InstallmentHealth) Valid() bool {
	switch h {
	case HealthHealthy, HealthAtRisk, HealthLiquidated:
		return true
	}
	return false
}

// LoanTerms are fixed when the loan is created.
type LoanTerms struct {
	InitialObligation decimal.Decimal
	DueDate           time.Time
	PenaltyRate       decimal.Decimal
	Principal         decimal.Decimal
}

type Payment struct {
	LoanID int64
	Amount decimal.Decimal
	PaidAt time.Time
}

// ComputeOutstandingPrincipal returns the total owed on the loan at asOf, penalties
// included. Nothing accrues until the due date has passed.
func ComputeOutstandingPrincipal(terms LoanTerms, asOf time.Time) decimal.Decimal {
	if !asOf.After(terms.DueDate) {
		return terms.InitialObligation
	}

	elapsedDays := int(calendarDay(asOf).Sub(calendarDay(terms.DueDate)) / (24 * time.Hour))
	if elapsedDays <= ShortLateWindowDays {
		return terms.InitialObligation.Add(terms.PenaltyRate.Mul(terms.Principal))
	}

	monthsLate := decimal.NewFromInt(int64(monthsBetween(terms.DueDate, asOf)))
	return terms.InitialObligation.Add(monthsLate.Mul(MonthlyLatePenaltyRate).Mul(terms.Principal))
}

// ComputeRemainingBalance subtracts the payments made on loanID from the outstanding
// obligation. Payments for other loans are ignored. A negative result is an overpayment.
func ComputeRemainingBalance(terms LoanTerms, loanID int64, payments []Payment, asOf time.Time) decimal.Decimal {
	outstanding := ComputeOutstandingPrincipal(terms, asOf)
	return outstanding.Sub(TotalPaid(loanID, payments))
}

func TotalPaid(loanID int64, payments []Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		if p.LoanID == loanID {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}

// ComputeLoanStatus classifies the loan lifecycle. COMPLETED is never overridden;
// otherwise the loan is EXTENDED on any calendar day after its due date.
func ComputeLoanStatus(existing LoanStatus, dueDate, asOf time.Time) LoanStatus {
	if existing.IsTerminal() {
		return existing
	}
	if calendarDay(asOf).After(calendarDay(dueDate)) {
		return StatusExtended
	}
	return StatusActive
}

// ComputeInstallmentHealth classifies payment health from how recently the borrower
// last paid. LIQUIDATED is never overridden.
func ComputeInstallmentHealth(existing InstallmentHealth, dueDate time.Time, payments []Payment, asOf time.Time) InstallmentHealth {
	if existing.IsTerminal() {
		return existing
	}

	if len(payments) == 0 {
		if calendarDay(asOf).After(calendarDay(dueDate)) {
			return HealthAtRisk
		}
		return HealthHealthy
	}

	if monthsBetween(latestPayment(payments).PaidAt, asOf) > AtRiskAfterMonths {
		return HealthAtRisk
	}
	return HealthHealthy
}

// latestPayment returns the payment with the greatest PaidAt without reordering the
// input. payments must not be empty.
func latestPayment(payments []Payment) Payment {
	sorted := make([]Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaidAt.Before(sorted[j].PaidAt)
	})
	return sorted[len(sorted)-1]
}

// Calendar days and months are read in UTC.
func monthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()*12 + int(to.Month())) - (from.Year()*12 + int(from.Month()))
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
