// Package notifications delivers in-app messages for settlement events.
// Every call site treats delivery as best effort: a failed send is logged and
// never fails the flow that produced it.
package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Template ids rendered by clients.
const (
	TemplateOrderShipped    = "order_shipped"
	TemplateOrderDelivered  = "order_delivered"
	TemplateOrderCancelled  = "order_cancelled"
	TemplatePayoutScheduled = "payout_scheduled"
	TemplateRefundRequested = "refund_requested"
	TemplateRefundApproved  = "refund_approved"
	TemplateRefundRejected  = "refund_rejected"
	TemplateRefundFailed    = "refund_failed"
)

// Dispatcher is the outbound notification surface the domain services use.
type Dispatcher interface {
	Send(ctx context.Context, templateID string, recipient uuid.UUID, data map[string]any) error
}

// Service persists notifications as inbox rows.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the notification dispatcher.
func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Send writes one inbox row for the recipient.
func (s *Service) Send(ctx context.Context, templateID string, recipient uuid.UUID, data map[string]any) error {
	if templateID == "" {
		return errors.New("template id is required")
	}
	if recipient == uuid.Nil {
		return errors.New("recipient is required")
	}

	notification := &models.Notification{
		UserID:     recipient,
		TemplateID: templateID,
		Payload:    types.JSONMap(data),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"template_id": templateID,
		"user_id":     recipient.String(),
	}), "notifications.sent")
	return nil
}
