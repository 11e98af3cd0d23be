package enums

import "fmt"

// TransactionStatus tracks the lifecycle of one payment attempt, independent
// of fulfillment.
type TransactionStatus string

const (
	TransactionStatusPending          TransactionStatus = "pending"
	TransactionStatusPaymentSubmitted TransactionStatus = "payment_submitted"
	TransactionStatusCompleted        TransactionStatus = "completed"
	TransactionStatusRefundPending    TransactionStatus = "refund_pending"
	TransactionStatusRefunded         TransactionStatus = "refunded"
	TransactionStatusFailed           TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusPaymentSubmitted,
	TransactionStatusCompleted,
	TransactionStatusRefundPending,
	TransactionStatusRefunded,
	TransactionStatusFailed,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
