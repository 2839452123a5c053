package campaigns

import (
	"fmt"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

// MinimumQuantityPolicy decides the committed quantity a campaign needs to lock.
type MinimumQuantityPolicy interface {
	Name() string
	Minimum(campaign models.Campaign, brackets []models.DiscountBracket) (int, error)
}

// TargetQuantityPolicy uses the supplier-declared target quantity.
type TargetQuantityPolicy struct{}

func (TargetQuantityPolicy) Name() string { return config.MinimumPolicyTarget }

func (TargetQuantityPolicy) Minimum(campaign models.Campaign, _ []models.DiscountBracket) (int, error) {
	if campaign.TargetQuantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "campaign target quantity must be positive")
	}
	return campaign.TargetQuantity, nil
}

// LowestBracketPolicy uses the first bracket's minimum, floored at one unit.
// Since a valid table starts at zero this locks any campaign with at least
// one committed unit.
type LowestBracketPolicy struct{}

func (LowestBracketPolicy) Name() string { return config.MinimumPolicyLowestBracket }

func (LowestBracketPolicy) Minimum(_ models.Campaign, brackets []models.DiscountBracket) (int, error) {
	sorted := pricing.Sorted(brackets)
	if len(sorted) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "campaign has no discount brackets")
	}
	if sorted[0].MinQuantity < 1 {
		return 1, nil
	}
	return sorted[0].MinQuantity, nil
}

// PolicyFromConfig maps a GROUPBUY_LIFECYCLE_MINIMUM_POLICY value to a policy.
func PolicyFromConfig(name string) (MinimumQuantityPolicy, error) {
	switch name {
	case "", config.MinimumPolicyTarget:
		return TargetQuantityPolicy{}, nil
	case config.MinimumPolicyLowestBracket:
		return LowestBracketPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown minimum quantity policy %q", name)
	}
}
