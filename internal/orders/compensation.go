package orders

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
)

// compensate undoes an order's resource commitments after a cancel or
// return. It runs inside the transition's transaction, so it executes at
// most once per order: a second cancel or return fails the state guard
// before reaching here.
func (s *service) compensate(ctx context.Context, tx *gorm.DB, order *models.Order, terminal enums.OrderStatus, reason string) error {
	for _, item := range order.Items {
		if err := s.stock.Restore(ctx, tx, item.ProductID, item.Qty); err != nil {
			return err
		}
	}

	payment := order.CurrentPayment()
	if payment == nil {
		return nil
	}

	switch payment.Status {
	case enums.PaymentStatusCompleted:
		return s.refund(ctx, tx, order, payment, terminal, reason)
	case enums.PaymentStatusPending:
		if err := s.payments.WithTx(tx).Update(ctx, payment.ID, map[string]any{
			"status": enums.PaymentStatusCancelled,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment")
		}
		payment.Status = enums.PaymentStatusCancelled
		return nil
	default:
		return nil
	}
}

// refund settles money back to the customer. Gateway payments are refunded
// through the provider under a refund-scoped reference, so retrying a
// failed return cannot double-refund. Cash payments are flagged for manual
// settlement since nothing was captured electronically.
func (s *service) refund(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, terminal enums.OrderStatus, reason string) error {
	now := s.clock.Now().UTC()
	metadata := map[string]any{
		"payment_id":    payment.ID,
		"refund_amount": payment.Amount,
	}

	if payment.Method.IsPrepaid() {
		if payment.ExternalTransactionID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "completed gateway payment has no transaction reference")
		}
		transID, err := strconv.ParseInt(*payment.ExternalTransactionID, 10, 64)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse gateway transaction reference")
		}

		ref := refundOrderRef(payment.ID)
		result, err := s.gateway.Refund(ctx, momo.RefundParams{
			OrderRef:    ref,
			RequestID:   uuid.NewString(),
			TransID:     transID,
			Amount:      payment.Amount,
			Description: reason,
		})
		if err != nil {
			return err
		}

		refundTransID := strconv.FormatInt(result.TransID, 10)
		entry := &models.Payment{
			ID:                    uuid.New(),
			OrderID:               order.ID,
			Method:                payment.Method,
			Status:                enums.PaymentStatusRefunded,
			Amount:                -payment.Amount,
			GatewayOrderRef:       &ref,
			ExternalTransactionID: &refundTransID,
			RefundOfID:            &payment.ID,
			PaidAt:                &now,
		}
		if raw, err := json.Marshal(result); err == nil {
			entry.GatewayResponseRaw = raw
		}
		if err := s.payments.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund settlement")
		}
		metadata["refund_trans_id"] = result.TransID
	} else {
		note := "manual settlement required"
		metadata["manual_settlement"] = true
		metadata["note"] = note
	}

	if err := s.payments.WithTx(tx).Update(ctx, payment.ID, map[string]any{
		"status": enums.PaymentStatusRefunded,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
	}
	payment.Status = enums.PaymentStatusRefunded

	_, err := s.audit.Append(ctx, tx, auditlog.Entry{
		OrderID:    order.ID,
		FromStatus: &terminal,
		ToStatus:   terminal,
		Action:     enums.OrderActionRefunded,
		ActorType:  enums.ActorTypeSystem,
		Metadata:   metadata,
	})
	return err
}
