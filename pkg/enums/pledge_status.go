package enums

import "fmt"

// PledgeStatus tracks a buyer's pledge against a campaign.
type PledgeStatus string

const (
	PledgeStatusPending   PledgeStatus = "PENDING"
	PledgeStatusCommitted PledgeStatus = "COMMITTED"
	PledgeStatusWithdrawn PledgeStatus = "WITHDRAWN"
)

var validPledgeStatuses = []PledgeStatus{
	PledgeStatusPending,
	PledgeStatusCommitted,
	PledgeStatusWithdrawn,
}

// String implements fmt.Stringer.
func (p PledgeStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PledgeStatus.
func (p PledgeStatus) IsValid() bool {
	for _, candidate := range validPledgeStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further mutation is allowed.
func (p PledgeStatus) IsTerminal() bool {
	return p == PledgeStatusCommitted || p == PledgeStatusWithdrawn
}

// ParsePledgeStatus converts raw input into a PledgeStatus.
func ParsePledgeStatus(value string) (PledgeStatus, error) {
	for _, candidate := range validPledgeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pledge status %q", value)
}
