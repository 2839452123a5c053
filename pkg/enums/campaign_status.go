package enums

import "fmt"

// CampaignStatus tracks the lifecycle of a group-buy campaign.
type CampaignStatus string

const (
	CampaignStatusDraft       CampaignStatus = "DRAFT"
	CampaignStatusActive      CampaignStatus = "ACTIVE"
	CampaignStatusGracePeriod CampaignStatus = "GRACE_PERIOD"
	CampaignStatusLocked      CampaignStatus = "LOCKED"
	CampaignStatusCancelled   CampaignStatus = "CANCELLED"
	CampaignStatusDone        CampaignStatus = "DONE"
)

var validCampaignStatuses = []CampaignStatus{
	CampaignStatusDraft,
	CampaignStatusActive,
	CampaignStatusGracePeriod,
	CampaignStatusLocked,
	CampaignStatusCancelled,
	CampaignStatusDone,
}

// campaignTransitions lists every permitted edge; anything absent is rejected.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:       {CampaignStatusActive},
	CampaignStatusActive:      {CampaignStatusGracePeriod},
	CampaignStatusGracePeriod: {CampaignStatusLocked, CampaignStatusCancelled},
	CampaignStatusLocked:      {CampaignStatusDone},
	CampaignStatusCancelled:   {CampaignStatusDone},
}

// String implements fmt.Stringer.
func (c CampaignStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CampaignStatus.
func (c CampaignStatus) IsValid() bool {
	for _, candidate := range validCampaignStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the campaign state machine has an edge c -> next.
func (c CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, candidate := range campaignTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AcceptsPledges reports whether buyers may create pledges in this status.
func (c CampaignStatus) AcceptsPledges() bool {
	return c == CampaignStatusActive || c == CampaignStatusGracePeriod
}

// ParseCampaignStatus converts raw input into a CampaignStatus.
func ParseCampaignStatus(value string) (CampaignStatus, error) {
	for _, candidate := range validCampaignStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign status %q", value)
}
