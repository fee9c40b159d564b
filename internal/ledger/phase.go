package ledger

// Phase is one stage of a round.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseAuction1   Phase = "auction1"
	PhaseOTCOffsets Phase = "otc-offsets"
	PhaseAuction2   Phase = "auction2"
	PhaseReporting  Phase = "reporting"
	PhaseCompliance Phase = "compliance"

	// PhaseCompleted is terminal: the final round's compliance phase is over.
	PhaseCompleted Phase = "completed"
)

// Phases is the fixed order of a round.
var Phases = [...]Phase{
	PhasePlanning,
	PhaseAuction1,
	PhaseOTCOffsets,
	PhaseAuction2,
	PhaseReporting,
	PhaseCompliance,
}

// Index returns the position of p in a round, or -1.
func (p Phase) Index() int {
	for i, q := range Phases {
		if p == q {
			return i
		}
	}
	return -1
}

// InRound reports whether p is one of the six round phases.
func (p Phase) InRound() bool {
	return p.Index() >= 0
}

// PhaseProgress holds one completion flag per round phase.
type PhaseProgress struct {
	Planning   bool `json:"planning"`
	Auction1   bool `json:"auction1"`
	OTCOffsets bool `json:"otc-offsets"`
	Auction2   bool `json:"auction2"`
	Reporting  bool `json:"reporting"`
	Compliance bool `json:"compliance"`
}

func (pp *PhaseProgress) flag(p Phase) *bool {
	switch p {
	case PhasePlanning:
		return &pp.Planning
	case PhaseAuction1:
		return &pp.Auction1
	case PhaseOTCOffsets:
		return &pp.OTCOffsets
	case PhaseAuction2:
		return &pp.Auction2
	case PhaseReporting:
		return &pp.Reporting
	case PhaseCompliance:
		return &pp.Compliance
	}
	return nil
}

// Done reports the flag for p. Unknown phases read as not done.
func (pp PhaseProgress) Done(p Phase) bool {
	if f := pp.flag(p); f != nil {
		return *f
	}
	return false
}

// Set writes the flag for p and reports whether p was a round phase.
func (pp *PhaseProgress) Set(p Phase, done bool) bool {
	f := pp.flag(p)
	if f == nil {
		return false
	}
	*f = done
	return true
}

// Reset clears every flag.
func (pp *PhaseProgress) Reset() {
	*pp = PhaseProgress{}
}
