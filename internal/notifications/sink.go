package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

// Message is one notification addressed to one or more organizations.
type Message struct {
	Type       enums.NotificationType `json:"type"`
	Recipients []uuid.UUID            `json:"recipients"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Link       *string                `json:"link,omitempty"`
	CampaignID *uuid.UUID             `json:"campaign_id,omitempty"`
	InvoiceID  *uuid.UUID             `json:"invoice_id,omitempty"`
}

func (m Message) validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("unknown notification type %q", m.Type)
	}
	if len(m.Recipients) == 0 {
		return errors.New("notification has no recipients")
	}
	return nil
}

// Sink delivers notifications. Implementations are called after the
// triggering transaction has committed.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// StoreSink writes one in-app notification row per recipient.
type StoreSink struct {
	repo Repository
}

// NewStoreSink builds a sink backed by the notifications table.
func NewStoreSink(repo Repository) (*StoreSink, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	return &StoreSink{repo: repo}, nil
}

func (s *StoreSink) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	rows := make([]models.Notification, 0, len(msg.Recipients))
	seen := make(map[uuid.UUID]struct{}, len(msg.Recipients))
	for _, orgID := range msg.Recipients {
		if orgID == uuid.Nil {
			continue
		}
		if _, dup := seen[orgID]; dup {
			continue
		}
		seen[orgID] = struct{}{}
		rows = append(rows, models.Notification{
			OrganizationID: orgID,
			Type:           msg.Type,
			Title:          msg.Title,
			Message:        msg.Body,
			Link:           msg.Link,
		})
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("store %s notifications: %w", msg.Type, err)
	}
	return nil
}

// MultiSink fans a message out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, msg Message) error {
	var err error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.Send(ctx, msg))
	}
	return err
}

// BestEffort wraps a sink so failures are logged and never returned.
type BestEffort struct {
	sink Sink
	logg *logger.Logger
}

// NewBestEffort wraps sink. A nil sink makes Send a no-op.
func NewBestEffort(sink Sink, logg *logger.Logger) *BestEffort {
	return &BestEffort{sink: sink, logg: logg}
}

func (b *BestEffort) Send(ctx context.Context, msg Message) error {
	if b == nil || b.sink == nil {
		return nil
	}
	err := b.safeSend(ctx, msg)
	if err != nil && b.logg != nil {
		logCtx := b.logg.WithFields(ctx, map[string]any{
			"notification_type": msg.Type,
			"recipients":        len(msg.Recipients),
		})
		for _, cause := range multierr.Errors(err) {
			b.logg.Error(logCtx, "notification send failed", cause)
		}
	}
	return nil
}

func (b *BestEffort) safeSend(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification sink panic: %v", r)
		}
	}()
	return b.sink.Send(ctx, msg)
}
