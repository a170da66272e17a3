package conversation

import "fmt"

// Disposition is the trainee's outcome classification for a call.
type Disposition string

const (
	DispositionUnset     Disposition = ""
	DispositionResolved  Disposition = "Resolved"
	DispositionTransfer  Disposition = "Transfer"
	DispositionEscalated Disposition = "Escalated to Supervisor"
	DispositionCallBack  Disposition = "Call Back"
	DispositionHangUp    Disposition = "Hang Up"
)

// Dispositions lists every value in display order.
var Dispositions = []Disposition{
	DispositionUnset,
	DispositionResolved,
	DispositionTransfer,
	DispositionEscalated,
	DispositionCallBack,
	DispositionHangUp,
}

// ParseDisposition validates s against the closed set.
func ParseDisposition(s string) (Disposition, error) {
	for _, d := range Dispositions {
		if string(d) == s {
			return d, nil
		}
	}
	return DispositionUnset, fmt.Errorf("unknown disposition %q", s)
}
