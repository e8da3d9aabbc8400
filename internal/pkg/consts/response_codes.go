package consts

// Protocol response codes. The taxonomy is part of the wire contract:
// 8000 is success and every 80xx code keeps a stable description.
const (
	CodeSuccess           = 8000
	CodeInvalidSignature  = 8001
	CodeMalformedEnvelope = 8002
	CodeMissingHeader     = 8003
	CodeSchemaViolation   = 8004
	CodeUnknownLoan       = 8005
	CodeStateConflict     = 8006
	CodeInternalError     = 8007
	CodeDuplicateMessage  = 8008
)

var ResponseDescriptions = map[int]string{
	CodeSuccess:           "Successful",
	CodeInvalidSignature:  "Signature verification failed",
	CodeMalformedEnvelope: "Malformed message envelope",
	CodeMissingHeader:     "Required header field missing",
	CodeSchemaViolation:   "Required message detail missing or invalid",
	CodeUnknownLoan:       "No matching loan record",
	CodeStateConflict:     "Operation not allowed in current loan state",
	CodeInternalError:     "Internal processing error",
	CodeDuplicateMessage:  "Duplicate message id",
}

// ResponseDescription returns the stable description for a protocol code.
func ResponseDescription(code int) string {
	if d, ok := ResponseDescriptions[code]; ok {
		return d
	}
	return ResponseDescriptions[CodeInternalError]
}
