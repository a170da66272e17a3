package conversation

import (
	"fmt"
	"strings"

	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/transcript"
)

// SystemInstruction casts the model as the scenario's customer.
func SystemInstruction(s scenario.Scenario) string {
	return fmt.Sprintf(`You are roleplaying a customer in a tech support call.

**Your Persona:**
- Name: %[1]s
- Product Used: %[2]s
- Your Problem: %[3]s
- Technical Skill: Basic user. You don't know technical jargon.

**Roleplay Rules:**
1.  Respond to the support agent's questions based on your persona.
2.  You are experiencing the problem right now.
3.  Do NOT suggest solutions. Follow the agent's lead.
4.  The KEY to solving your problem is related to this hint: '%[4]s'. When the agent suggests something related to this hint, it should eventually lead to the solution.
5.  Keep your responses short and natural, like you're on a phone call.
6.  Do not mention that you are an AI. You are %[1]s. Do not break character.`,
		s.Customer.Name, s.Product, s.Seed(), s.SummaryHint)
}

// SuggestionPrompt asks for one candidate next agent line given the call so far.
func SuggestionPrompt(s scenario.Scenario, lines []transcript.Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful assistant for a call center agent in training. "+
		"Based on the following transcript of a support call, suggest a single, concise, and helpful response for the 'agent' to say next. "+
		"The agent is trying to solve the customer's problem, which is related to this hint: '%s'. "+
		"Do not explain your suggestion or add quotation marks, just provide the text for the agent to say.\n\nTranscript:\n", s.SummaryHint)
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", l.Role, l.Text)
	}
	b.WriteString("\n\nAgent's next line:")
	return b.String()
}

// History converts the transcript into model history: system lines are
// dropped, agent lines become user turns and customer lines model turns.
func History(lines []transcript.Line) []gateway.Turn {
	turns := make([]gateway.Turn, 0, len(lines))
	for _, l := range lines {
		switch l.Role {
		case transcript.RoleAgent:
			turns = append(turns, gateway.NewTurn(gateway.SpeakerUser, l.Text))
		case transcript.RoleCustomer:
			turns = append(turns, gateway.NewTurn(gateway.SpeakerModel, l.Text))
		}
	}
	return turns
}
