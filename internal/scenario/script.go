package scenario

import (
	"regexp"
	"strings"
)

// AgentNameToken is substituted with the trainee's display name in opening templates.
const AgentNameToken = "{{AGENT_NAME}}"

// DefaultSeed opens the call when a scenario has no scripted customer line.
const DefaultSeed = "Hi, I have an issue."

// ChecklistItem is one entry of the troubleshooting checklist derived from SummaryHint.
type ChecklistItem struct {
	Full    string `json:"full"`
	Bold    string `json:"bold"`
	Regular string `json:"regular"`
}

var labelled = regexp.MustCompile(`\*\*(.*?):\*\*\s*(.*)`)

// Checklist splits the summary hint on '|' into label/text pairs.
// Items without the **Label:** form keep the whole text as the label.
func (s Scenario) Checklist() []ChecklistItem {
	var items []ChecklistItem
	for _, part := range strings.Split(s.SummaryHint, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := labelled.FindStringSubmatch(part); len(m) == 3 {
			items = append(items, ChecklistItem{Full: part, Bold: strings.TrimSpace(m[1]), Regular: strings.TrimSpace(m[2])})
			continue
		}
		items = append(items, ChecklistItem{Full: part, Bold: part})
	}
	return items
}

// Seed returns the customer's first scripted line.
func (s Scenario) Seed() string {
	if len(s.Path) > 0 && s.Path[0].Customer != "" {
		return s.Path[0].Customer
	}
	return DefaultSeed
}

// OpeningLine renders the template chosen by pick (called with the number of
// templates, returning an index) for agentName. No templates yields "".
func (s Scenario) OpeningLine(agentName string, pick func(n int) int) string {
	n := len(s.OpeningTemplates)
	if n == 0 {
		return ""
	}
	i := 0
	if pick != nil {
		i = pick(n)
	}
	if i < 0 || i >= n {
		i = 0
	}
	return strings.Replace(s.OpeningTemplates[i], AgentNameToken, agentName, 1)
}
