package conversation

import (
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/transcript"
)

// ChecklistView is one checklist row as shown to the trainee.
type ChecklistView struct {
	scenario.ChecklistItem
	Done bool `json:"done"`
}

// View is a read-only snapshot of the session for rendering.
type View struct {
	Active      bool               `json:"active"`
	Scenario    *scenario.Scenario `json:"scenario,omitempty"`
	AgentName   string             `json:"agentName"`
	Input       string             `json:"input"`
	Notes       string             `json:"notes"`
	Disposition Disposition        `json:"disposition"`
	Checklist   []ChecklistView    `json:"checklist"`
	Transcript  []transcript.Line  `json:"transcript"`
	Generating  bool               `json:"generating"`
	Suggesting  bool               `json:"suggesting"`
	Listening   bool               `json:"listening"`
	Epoch       uint64             `json:"epoch"`
}

// View snapshots the current state. The result shares nothing with m.
func (m *Machine) View() View {
	v := View{
		Active:      m.scenario != nil,
		AgentName:   m.agentName,
		Input:       m.input,
		Notes:       m.notes,
		Disposition: m.disposition,
		Checklist:   make([]ChecklistView, len(m.checklist)),
		Transcript:  m.store.Snapshot(),
		Generating:  m.Generating(),
		Suggesting:  m.Suggesting(),
		Listening:   m.listening,
		Epoch:       m.epoch,
	}
	if m.scenario != nil {
		s := *m.scenario
		v.Scenario = &s
	}
	for i, c := range m.checklist {
		v.Checklist[i] = ChecklistView{ChecklistItem: c, Done: m.done[i]}
	}
	return v
}
