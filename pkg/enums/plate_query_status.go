package enums

import "fmt"

// PlateQueryStatus tracks how far a lookup has progressed through checkout.
type PlateQueryStatus string

const (
	PlateQueryPreviewReady  PlateQueryStatus = "preview_ready"
	PlateQueryPaidPending   PlateQueryStatus = "paid_pending"
	PlateQueryPaidConfirmed PlateQueryStatus = "paid_confirmed"
	PlateQueryEnriched      PlateQueryStatus = "enriched"
)

var plateQueryRank = map[PlateQueryStatus]int{
	PlateQueryPreviewReady:  0,
	PlateQueryPaidPending:   1,
	PlateQueryPaidConfirmed: 2,
	PlateQueryEnriched:      3,
}

func (s PlateQueryStatus) String() string {
	return string(s)
}

func (s PlateQueryStatus) IsValid() bool {
	_, ok := plateQueryRank[s]
	return ok
}

// Before reports whether s precedes next in the lookup lifecycle.
// Status only ever moves forward.
func (s PlateQueryStatus) Before(next PlateQueryStatus) bool {
	return plateQueryRank[s] < plateQueryRank[next]
}

// Predecessors returns the statuses that may advance to s.
func (s PlateQueryStatus) Predecessors() []PlateQueryStatus {
	out := make([]PlateQueryStatus, 0, len(plateQueryRank))
	for candidate, rank := range plateQueryRank {
		if rank < plateQueryRank[s] {
			out = append(out, candidate)
		}
	}
	return out
}

func ParsePlateQueryStatus(value string) (PlateQueryStatus, error) {
	status := PlateQueryStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid plate query status %q", value)
	}
	return status, nil
}
