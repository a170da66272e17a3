package voice

import "fmt"

// Code identifies why capture failed.
type Code string

const (
	CodeNotSupported     Code = "not-supported"
	CodeInsecureContext  Code = "insecure-context"
	CodePermissionDenied Code = "not-allowed"
	CodeNetwork          Code = "network"
	CodeUnknown          Code = "unknown"
)

// Error is a capture failure. Raw carries the engine's own error string.
type Error struct {
	Code Code
	Raw  string
}

func (e *Error) Error() string {
	if e.Raw != "" && e.Raw != string(e.Code) {
		return fmt.Sprintf("voice: %s: %s", e.Code, e.Raw)
	}
	return fmt.Sprintf("voice: %s", e.Code)
}

// ParseError maps an engine error string onto a Code.
func ParseError(raw string) *Error {
	switch raw {
	case "network":
		return &Error{Code: CodeNetwork, Raw: raw}
	case "not-allowed", "service-not-allowed":
		return &Error{Code: CodePermissionDenied, Raw: raw}
	case "insecure-context":
		return &Error{Code: CodeInsecureContext, Raw: raw}
	case "not-supported":
		return &Error{Code: CodeNotSupported, Raw: raw}
	default:
		return &Error{Code: CodeUnknown, Raw: raw}
	}
}
