package models

// CustomError is a coded error surfaced to the protocol counterparty or
// recorded against a loan record. ProtocolCode maps onto the 80xx taxonomy.
type CustomError struct {
	Code         string
	Message      string
	ProtocolCode int
}

func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) ErrorCode() string {
	return e.Code
}

func NewConflictError(message string) *CustomError {
	return &CustomError{Code: "MIRACORE_STATE_CONFLICT", Message: message, ProtocolCode: 8006}
}

func NewNotFoundError(message string) *CustomError {
	return &CustomError{Code: "MIRACORE_NOT_FOUND", Message: message, ProtocolCode: 8005}
}

func NewValidationError(message string) *CustomError {
	return &CustomError{Code: "MIRACORE_VALIDATION_FAILED", Message: message, ProtocolCode: 8004}
}

func NewStructuralError(message string, protocolCode int) *CustomError {
	return &CustomError{Code: "MIRACORE_STRUCTURAL_ERROR", Message: message, ProtocolCode: protocolCode}
}
