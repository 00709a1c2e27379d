package tracker

import "github.com/steveyegge/bugtracker/internal/types"

// Report counts at which severity is raised
const (
	MediumReportThreshold = 5
	HighReportThreshold   = 10
)

// Escalate raises severity as reports accumulate: Low becomes Medium at 5
// reports and anything becomes High at 10. It never lowers severity.
func Escalate(sev types.Severity, reports int) types.Severity {
	switch {
	case reports >= HighReportThreshold:
		return types.SeverityHigh
	case reports >= MediumReportThreshold && sev == types.SeverityLow:
		return types.SeverityMedium
	}
	return sev
}
