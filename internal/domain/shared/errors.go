package shared

// DomainError is an error with a stable machine-readable code. Services
// return these for rule violations a caller can act on; infrastructure
// failures pass through untyped.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so errors.Is works
// against the sentinels below even when the instance carries a more
// specific message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Sentinels for the rule violations the inventory services raise
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrValidation           = NewDomainError("VALIDATION_ERROR", "Invalid input provided")
	ErrBatchNotFound        = NewDomainError("BATCH_NOT_FOUND", "Batch does not exist")
	ErrInsufficientStock    = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrInvalidTransition    = NewDomainError("INVALID_TRANSITION", "Status transition not allowed")
	ErrConcurrencyConflict  = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrDuplicateBatchNumber = NewDomainError("DUPLICATE_BATCH_NUMBER", "Batch number already exists for this product")
)
