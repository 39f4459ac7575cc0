package ledger

import "time"

// Period is the time span between two settlements. The open period has
// Start set and End zero; a settled period carries both bounds.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	if p.End.IsZero() {
		return "[" + p.Start.Format(time.RFC3339) + ", open)"
	}
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + ")"
}
