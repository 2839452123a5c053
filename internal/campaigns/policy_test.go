package campaigns

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

func TestPolicyFromConfig(t *testing.T) {
	cases := map[string]string{
		"":               "target",
		"target":         "target",
		"lowest_bracket": "lowest_bracket",
	}
	for input, want := range cases {
		policy, err := PolicyFromConfig(input)
		if err != nil {
			t.Fatalf("PolicyFromConfig(%q): %v", input, err)
		}
		if policy.Name() != want {
			t.Fatalf("PolicyFromConfig(%q) = %s, want %s", input, policy.Name(), want)
		}
	}
	if _, err := PolicyFromConfig("median"); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
}

func TestTargetQuantityPolicy(t *testing.T) {
	got, err := TargetQuantityPolicy{}.Minimum(models.Campaign{TargetQuantity: 250}, nil)
	if err != nil || got != 250 {
		t.Fatalf("expected 250, got %d (%v)", got, err)
	}
	if _, err := (TargetQuantityPolicy{}).Minimum(models.Campaign{}, nil); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero target, got %v", err)
	}
}

func TestLowestBracketPolicy(t *testing.T) {
	policy := LowestBracketPolicy{}

	got, err := policy.Minimum(models.Campaign{}, []models.DiscountBracket{
		{BracketOrder: 1, MinQuantity: 50, UnitPrice: decimal.NewFromInt(90)},
		{BracketOrder: 0, MinQuantity: 0, MaxQuantity: intPtr(49), UnitPrice: decimal.NewFromInt(100)},
	})
	if err != nil || got != 1 {
		t.Fatalf("expected floor of 1, got %d (%v)", got, err)
	}

	got, err = policy.Minimum(models.Campaign{}, []models.DiscountBracket{{BracketOrder: 0, MinQuantity: 20}})
	if err != nil || got != 20 {
		t.Fatalf("expected 20, got %d (%v)", got, err)
	}

	if _, err := policy.Minimum(models.Campaign{}, nil); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for empty table, got %v", err)
	}
}
