package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

type fakeBracketStore struct {
	brackets []models.DiscountBracket
	err      error
	calls    int
}

func (f *fakeBracketStore) ListByCampaign(context.Context, uuid.UUID) ([]models.DiscountBracket, error) {
	f.calls++
	return f.brackets, f.err
}

func TestServiceQuoteReadsBracketsEveryCall(t *testing.T) {
	store := &fakeBracketStore{brackets: standardTable()}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	campaignID := uuid.New()
	q, err := svc.Quote(context.Background(), campaignID, 25)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if *q.UnitsToNext != 25 {
		t.Fatalf("expected 25 units to next, got %d", *q.UnitsToNext)
	}

	store.brackets = []models.DiscountBracket{bracket(0, 0, nil, 70)}
	q, err = svc.Quote(context.Background(), campaignID, 25)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.UnitPrice().Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected fresh price 70, got %s", q.UnitPrice())
	}
	if store.calls != 2 {
		t.Fatalf("expected two store reads, got %d", store.calls)
	}
}

func TestServiceValidatesInput(t *testing.T) {
	svc, _ := NewService(&fakeBracketStore{})
	if _, err := svc.CurrentBracket(context.Background(), uuid.Nil, 1); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for nil campaign, got %v", err)
	}
	if _, err := svc.NextBracket(context.Background(), uuid.New(), -1); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative quantity, got %v", err)
	}
}

func TestServiceWrapsStoreErrors(t *testing.T) {
	svc, _ := NewService(&fakeBracketStore{err: errors.New("db down")})
	if _, err := svc.Quote(context.Background(), uuid.New(), 1); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRepositoryListsBracketsInOrder(t *testing.T) {
	conn := dbtest.Open(t)
	campaign := models.Campaign{SupplierID: uuid.New(), Title: "bulk gloves", TargetQuantity: 100}
	require.NoError(t, conn.Create(&campaign).Error)

	table := standardTable()
	for _, i := range []int{2, 0, 1} {
		b := table[i]
		b.CampaignID = campaign.ID
		require.NoError(t, conn.Create(&b).Error)
	}

	repo := NewRepository(conn)
	rows, err := repo.ListByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Equal(t, i, row.BracketOrder)
	}
	require.Nil(t, rows[2].MaxQuantity)
	require.True(t, rows[1].UnitPrice.Equal(decimal.NewFromInt(90)))

	svc, err := NewService(repo)
	require.NoError(t, err)
	current, err := svc.CurrentBracket(context.Background(), campaign.ID, 60)
	require.NoError(t, err)
	require.Equal(t, 50, current.MinQuantity)
}
