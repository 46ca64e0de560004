package check

// Status is a monitoring-plugin verdict. The numeric value is the process
// exit code the scheduler consumes.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

// ExitCode returns the process exit code for the status.
func (s Status) ExitCode() int {
	return int(s)
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Verdict maps a tally onto a status. Only the disconnect count crosses
// the thresholds; timeouts inform the message but never change the level.
func Verdict(t Tally, warning, critical int) Status {
	switch {
	case t.Disconnects > critical:
		return StatusCritical
	case t.Disconnects > warning:
		return StatusWarning
	default:
		return StatusOK
	}
}
