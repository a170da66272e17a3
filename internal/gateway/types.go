package gateway

import "strings"

// Request types accepted by the gateway endpoint.
const (
	TypeChat       = "chat"
	TypeSuggestion = "suggestion"
)

// Speaker roles in model history.
const (
	SpeakerUser  = "user"
	SpeakerModel = "model"
)

// Part is a fragment of a turn's content.
type Part struct {
	Text string `json:"text"`
}

// Turn is one entry of model history.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text joins the turn's parts.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range t.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// NewTurn builds a single-part turn.
func NewTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// ChatRequest asks the model to answer the final user turn given the history before it.
type ChatRequest struct {
	SystemInstruction string `json:"systemInstruction"`
	Transcript        []Turn `json:"transcript"`
}

// Request is the wire body. Chat requests set SystemInstruction/Transcript,
// suggestion requests set Prompt.
type Request struct {
	Type              string `json:"type"`
	SystemInstruction string `json:"systemInstruction,omitempty"`
	Transcript        []Turn `json:"transcript,omitempty"`
	Prompt            string `json:"prompt,omitempty"`
}

// Response is the success body.
type Response struct {
	Text string `json:"text"`
}

// ErrorResponse is the non-200 body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
