package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pawn-ledger/internal/domain/loan"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

const dateLayout = time.DateOnly

type CreateLoanRequest struct {
	CustomerName string  `json:"customerName" example:"Siti Rahma"`
	Collateral   string  `json:"collateral" example:"Gold bracelet 12g"`
	Principal    string  `json:"principal" example:"1000000.00"`
	InterestRate *string `json:"interestRate,omitempty" example:"0.10"`
	PenaltyRate  *string `json:"penaltyRate,omitempty" example:"0.05"`
	DueDate      string  `json:"dueDate,omitempty" example:"2024-01-31"`
}

// ToParams validates the request and converts it for the loan service. Optional
// fields left out take the service defaults.
func (r *CreateLoanRequest) ToParams() (loan.CreateLoanParams, error) {
	var params loan.CreateLoanParams
	if strings.TrimSpace(r.CustomerName) == "" {
		return params, apperrors.NewValidationError("customerName", "is required")
	}
	if strings.TrimSpace(r.Collateral) == "" {
		return params, apperrors.NewValidationError("collateral", "is required")
	}

	principal, err := decimal.NewFromString(r.Principal)
	if err != nil {
		return params, apperrors.NewValidationError("principal", "must be a decimal number")
	}
	if !isWholeCents(principal) {
		return params, apperrors.NewValidationError("principal", "must have at most 2 decimal places")
	}

	params = loan.CreateLoanParams{
		CustomerName: r.CustomerName,
		Collateral:   r.Collateral,
		Principal:    principal,
	}

	if r.InterestRate != nil {
		rate, err := decimal.NewFromString(*r.InterestRate)
		if err != nil {
			return params, apperrors.NewValidationError("interestRate", "must be a decimal number")
		}
		params.InterestRate = &rate
	}
	if r.PenaltyRate != nil {
		rate, err := decimal.NewFromString(*r.PenaltyRate)
		if err != nil {
			return params, apperrors.NewValidationError("penaltyRate", "must be a decimal number")
		}
		params.PenaltyRate = &rate
	}
	if r.DueDate != "" {
		dueDate, err := time.Parse(dateLayout, r.DueDate)
		if err != nil {
			return params, apperrors.NewValidationError("dueDate", "invalid format (use YYYY-MM-DD)")
		}
		params.DueDate = dueDate
	}
	return params, nil
}

type MakePaymentRequest struct {
	Amount string `json:"amount" example:"250000.00"`
}

func (r *MakePaymentRequest) Validate() (decimal.Decimal, error) {
	if r.Amount == "" {
		return decimal.Zero, apperrors.NewValidationError("amount", "is required")
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError("amount", "must be a decimal number")
	}
	if !isWholeCents(amount) {
		return decimal.Zero, apperrors.NewValidationError("amount", "must have at most 2 decimal places")
	}
	return amount, nil
}

// ParseAsOf accepts a calendar date or an RFC 3339 instant. An empty value yields the
// zero time, which the service reads as now.
func ParseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: asOf must be YYYY-MM-DD or RFC 3339", apperrors.ErrInvalidArgument)
	}
	return t, nil
}

type LoanResponse struct {
	ID                string            `json:"id"`
	CustomerName      string            `json:"customerName"`
	Collateral        string            `json:"collateral"`
	Principal         string            `json:"principal"`
	InterestRate      string            `json:"interestRate"`
	PenaltyRate       string            `json:"penaltyRate"`
	InitialObligation string            `json:"initialObligation"`
	DueDate           string            `json:"dueDate"`
	Status            string            `json:"status"`
	Health            string            `json:"health"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Payments          []PaymentResponse `json:"payments,omitempty"`
}

type PaymentResponse struct {
	ID     string    `json:"id"`
	LoanID string    `json:"loanId"`
	Amount string    `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
}

type ObligationResponse struct {
	LoanID      string    `json:"loanId"`
	AsOf        time.Time `json:"asOf"`
	Outstanding string    `json:"outstanding"`
	Paid        string    `json:"paid"`
	Remaining   string    `json:"remaining"`
	Status      string    `json:"status"`
	Health      string    `json:"health"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// isWholeCents reports whether d fits the NUMERIC(18,2) money columns without rounding.
func isWholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func NewLoanResponse(domainLoan *loan.Loan, includePayments bool) LoanResponse {
	resp := LoanResponse{
		ID:                strconv.FormatInt(domainLoan.ID, 10),
		CustomerName:      domainLoan.CustomerName,
		Collateral:        domainLoan.Collateral,
		Principal:         formatMoney(domainLoan.Principal),
		InterestRate:      domainLoan.InterestRate.String(),
		PenaltyRate:       domainLoan.PenaltyRate.String(),
		InitialObligation: formatMoney(domainLoan.InitialObligation),
		DueDate:           domainLoan.DueDate.Format(dateLayout),
		Status:            string(domainLoan.Status),
		Health:            string(domainLoan.Health),
		CreatedAt:         domainLoan.CreatedAt,
		UpdatedAt:         domainLoan.UpdatedAt,
	}

	if includePayments && domainLoan.Payments != nil {
		resp.Payments = make([]PaymentResponse, len(domainLoan.Payments))
		for i := range domainLoan.Payments {
			resp.Payments[i] = NewPaymentResponse(&domainLoan.Payments[i])
		}
	}
	return resp
}

func NewPaymentResponse(p *loan.Payment) PaymentResponse {
	return PaymentResponse{
		ID:     strconv.FormatInt(p.ID, 10),
		LoanID: strconv.FormatInt(p.LoanID, 10),
		Amount: formatMoney(p.Amount),
		PaidAt: p.PaidAt,
	}
}

func NewObligationResponse(ob *loan.Obligation) ObligationResponse {
	return ObligationResponse{
		LoanID:      strconv.FormatInt(ob.LoanID, 10),
		AsOf:        ob.AsOf,
		Outstanding: formatMoney(ob.Outstanding),
		Paid:        formatMoney(ob.Paid),
		Remaining:   formatMoney(ob.Remaining),
		Status:      string(ob.Status),
		Health:      string(ob.Health),
	}
}
