package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

// Service answers pricing questions for stored campaigns.
type Service struct {
	store BracketStore
}

func NewService(store BracketStore) (*Service, error) {
	if store == nil {
		return nil, errors.New("bracket store required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CurrentBracket(ctx context.Context, campaignID uuid.UUID, qty int) (*models.DiscountBracket, error) {
	brackets, err := s.load(ctx, campaignID, qty)
	if err != nil {
		return nil, err
	}
	return Current(brackets, qty), nil
}

func (s *Service) NextBracket(ctx context.Context, campaignID uuid.UUID, qty int) (*models.DiscountBracket, error) {
	brackets, err := s.load(ctx, campaignID, qty)
	if err != nil {
		return nil, err
	}
	return Next(brackets, qty), nil
}

// Quote prices qty against the campaign's current bracket table. The table is
// read on every call so the price always reflects the quantity at use time.
func (s *Service) Quote(ctx context.Context, campaignID uuid.UUID, qty int) (Quote, error) {
	brackets, err := s.load(ctx, campaignID, qty)
	if err != nil {
		return Quote{}, err
	}
	return Resolve(brackets, qty), nil
}

func (s *Service) load(ctx context.Context, campaignID uuid.UUID, qty int) ([]models.DiscountBracket, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	brackets, err := s.store.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount brackets")
	}
	return brackets, nil
}
