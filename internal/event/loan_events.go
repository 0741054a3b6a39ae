package event

import "time"

const RoutingKeyLoanClassificationChanged = "loan.classification.changed"

type LoanClassificationChangedEvent struct {
	LoanID    int64     `json:"loanId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	OldHealth string    `json:"oldHealth"`
	NewHealth string    `json:"newHealth"`
	AsOf      time.Time `json:"asOf"`
	Timestamp time.Time `json:"timestamp"`
}
