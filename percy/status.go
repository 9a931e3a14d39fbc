package percy

// Status is the outcome of the capability probe.
type Status int

const (
	StatusDisabled Status = iota
	StatusWeb
	StatusAutomate
)

func (s Status) String() string {
	switch s {
	case StatusWeb:
		return "web"
	case StatusAutomate:
		return "automate"
	}
	return "disabled"
}

// Enabled reports whether the agent accepts snapshots in any mode.
func (s Status) Enabled() bool {
	return s != StatusDisabled
}

func parseStatus(typ string) (Status, bool) {
	switch typ {
	case "web":
		return StatusWeb, true
	case "automate":
		return StatusAutomate, true
	}
	return StatusDisabled, false
}
