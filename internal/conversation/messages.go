package conversation

import (
	"errors"
	"fmt"

	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/voice"
)

// SuggestionFailedMessage is appended when a coach suggestion cannot be fetched.
const SuggestionFailedMessage = "Sorry, could not get a suggestion at this time."

// ChatErrorMessage turns a failed customer reply into the notice shown in the
// transcript.
func ChatErrorMessage(err error) string {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		return "Sorry, an error occurred with the AI. Please try again."
	}
	switch ge.Kind {
	case gateway.KindTransport:
		return "Sorry, the AI service could not be reached. Please check your connection and try again."
	case gateway.KindMalformed:
		return "Sorry, the AI returned an empty response. Please try again."
	default:
		return fmt.Sprintf("Sorry, an error occurred with the AI: %s. Please try again.", ge.Message)
	}
}

// CaptureErrorMessage explains a capture failure to the trainee.
func CaptureErrorMessage(err *voice.Error) string {
	switch err.Code {
	case voice.CodeNetwork:
		return "Speech recognition failed due to a network issue. Please check your internet connection. " +
			"Note: If you are on a preview or development server, its network configuration or domain might be preventing access to the speech service."
	case voice.CodePermissionDenied:
		return "Microphone access was denied. Please allow microphone access in your browser settings to use the voice feature."
	case voice.CodeInsecureContext:
		return "Speech recognition is not available. This feature only works on secure websites (HTTPS) or localhost."
	case voice.CodeNotSupported:
		return "Speech recognition is not supported by your browser. Please try Chrome or Edge for the best experience."
	default:
		return fmt.Sprintf("An unknown speech recognition error occurred: \"%s\". Please try again.", err.Raw)
	}
}
