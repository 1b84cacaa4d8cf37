package enums

// LegacyReportStatus tracks a vehicle_reports row in the protocol-based checkout.
type LegacyReportStatus string

const (
	LegacyReportPendingPayment LegacyReportStatus = "pending_payment"
	LegacyReportProcessing     LegacyReportStatus = "processing"
	LegacyReportCompleted      LegacyReportStatus = "completed"
	LegacyReportFailed         LegacyReportStatus = "failed"
)

func (s LegacyReportStatus) String() string {
	return string(s)
}

// Terminal reports whether no further provider polling is needed.
func (s LegacyReportStatus) Terminal() bool {
	return s == LegacyReportCompleted || s == LegacyReportFailed
}
