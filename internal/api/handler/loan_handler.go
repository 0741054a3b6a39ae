package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"pawn-ledger/internal/api/handler/dto"
	"pawn-ledger/internal/domain/loan"
	"pawn-ledger/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
)

type LoanHandler struct {
	service loan.LoanService
	logger  *slog.Logger
}

func NewLoanHandler(s loan.LoanService, l *slog.Logger) *LoanHandler {
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

func getLoanIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "loanID")
	if idStr == "" {
		return 0, fmt.Errorf("loanID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// CreateLoan opens a new pawn loan.
//
// @Summary Create a new loan
// @Description Opens a pawn loan against the pledged collateral. Interest rate, penalty rate and due date fall back to configured defaults when omitted.
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body dto.CreateLoanRequest true "Loan creation request payload"
// @Success 201 {object} dto.LoanResponse "Loan successfully created"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload or validation error"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	params, err := req.ToParams()
	if err != nil {
		respondError(w, err)
		return
	}

	createdLoan, err := h.service.CreateLoan(r.Context(), params)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewLoanResponse(createdLoan, false))
}

// GetLoan retrieves the details of a specific loan.
//
// @Summary Retrieve loan details
// @Description Returns the stored loan. Add `include=payments` to embed its payment history.
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param include query string false "Use 'payments' to include payment history"
// @Success 200 {object} dto.LoanResponse "Loan details successfully retrieved"
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans/{loanID} [get]
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	domainLoan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	includePayments := r.URL.Query().Get("include") == "payments"
	respondJSON(w, http.StatusOK, dto.NewLoanResponse(domainLoan, includePayments))
}

// GetObligation reports what the borrower owes.
//
// @Summary Compute loan obligation
// @Description Computes outstanding principal with penalties, total paid, remaining balance, loan status and installment health at the given instant (defaults to now).
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param asOf query string false "Evaluation date (YYYY-MM-DD or RFC 3339)"
// @Success 200 {object} dto.ObligationResponse "Obligation computed"
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID or asOf"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans/{loanID}/obligation [get]
func (h *LoanHandler) GetObligation(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	asOf, err := dto.ParseAsOf(r.URL.Query().Get("asOf"))
	if err != nil {
		respondError(w, err)
		return
	}

	ob, err := h.service.GetObligation(r.Context(), loanID, asOf)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewObligationResponse(ob))
}

// MakePayment records an installment payment.
//
// @Summary Make a loan payment
// @Description Records a payment against an open loan. The loan is marked COMPLETED once the remaining balance is settled.
// @Tags Loans
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param request body dto.MakePaymentRequest true "Payment request payload"
// @Success 201 {object} dto.PaymentResponse "Payment recorded"
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID, payload or amount"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan already completed or liquidated"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans/{loanID}/payments [post]
func (h *LoanHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.MakePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	amount, err := req.Validate()
	if err != nil {
		respondError(w, err)
		return
	}

	payment, err := h.service.MakePayment(r.Context(), loanID, amount)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewPaymentResponse(payment))
}

// Liquidate marks the loan collateral as liquidated.
//
// @Summary Liquidate loan collateral
// @Description Sets installment health to LIQUIDATED. The flag is permanent; repeating the call is a no-op.
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.MessageResponse "Loan liquidated"
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan already completed"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans/{loanID}/liquidate [post]
func (h *LoanHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.Liquidate(r.Context(), loanID); err != nil {
		respondError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Loan liquidated via API", "loanID", loanID)
	respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "Loan liquidated"})
}
