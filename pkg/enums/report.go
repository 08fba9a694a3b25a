package enums

import "fmt"

// ReportStatus tracks the admin handling of an abuse report.
type ReportStatus string

const (
	ReportStatusOpen      ReportStatus = "open"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

var validReportStatuses = []ReportStatus{
	ReportStatusOpen,
	ReportStatusResolved,
	ReportStatusDismissed,
}

// IsValid reports whether the value matches the canonical report status enum.
func (s ReportStatus) IsValid() bool {
	for _, candidate := range validReportStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReportStatus converts raw input into ReportStatus.
func ParseReportStatus(value string) (ReportStatus, error) {
	for _, candidate := range validReportStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report status %q", value)
}

// ReportTargetType names the kind of entity a report points at.
type ReportTargetType string

const (
	ReportTargetListing ReportTargetType = "listing"
)

// IsValid reports whether the value matches the canonical report target enum.
func (t ReportTargetType) IsValid() bool {
	return t == ReportTargetListing
}
