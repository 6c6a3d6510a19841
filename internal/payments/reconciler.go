package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the provider client the reconciler needs.
type Gateway interface {
	QueryStatus(ctx context.Context, orderRef, requestID string) (*momo.QueryStatusResult, error)
	VerifyIPN(payload *momo.IPNPayload) error
}

type auditRecorder interface {
	Append(ctx context.Context, tx *gorm.DB, entry auditlog.Entry) (*models.OrderLogEvent, error)
}

// Outcome is one provider-reported transaction result, normalized so the
// webhook path and the poll path apply identical updates.
type Outcome struct {
	Status  enums.PaymentStatus
	TransID int64
	Message string
	Raw     []byte
}

// Reconciler converges the payment ledger onto provider-reported results.
// Applying the same outcome twice is a no-op and writes no audit row.
type Reconciler interface {
	Apply(ctx context.Context, tx *gorm.DB, payment *models.Payment, outcome Outcome) (bool, error)
	HandleIPN(ctx context.Context, payload *momo.IPNPayload) error
	PollPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type reconciler struct {
	repo    Repository
	tx      txRunner
	gateway Gateway
	audit   auditRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// NewReconciler builds a payment reconciler with the required dependencies.
func NewReconciler(repo Repository, tx txRunner, gateway Gateway, audit auditRecorder, logg *logger.Logger) (Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &reconciler{
		repo:    repo,
		tx:      tx,
		gateway: gateway,
		audit:   audit,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// transitionAllowed enforces the forward-only payment ledger: a pending
// row may settle any way once, and only a completed row may be refunded.
func transitionAllowed(from, to enums.PaymentStatus) bool {
	switch from {
	case enums.PaymentStatusPending:
		return to == enums.PaymentStatusCompleted ||
			to == enums.PaymentStatusFailed ||
			to == enums.PaymentStatusCancelled ||
			to == enums.PaymentStatusExpired
	case enums.PaymentStatusCompleted:
		return to == enums.PaymentStatusRefunded
	default:
		return false
	}
}

func actionForPaymentStatus(status enums.PaymentStatus) (enums.OrderAction, error) {
	switch status {
	case enums.PaymentStatusCompleted:
		return enums.OrderActionPaymentCompleted, nil
	case enums.PaymentStatusFailed:
		return enums.OrderActionPaymentFailed, nil
	case enums.PaymentStatusCancelled:
		return enums.OrderActionPaymentCancelled, nil
	case enums.PaymentStatusExpired:
		return enums.OrderActionPaymentExpired, nil
	case enums.PaymentStatusRefunded:
		return enums.OrderActionRefunded, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeInternal, "no audit action for payment status "+status.String())
	}
}

// Apply persists one outcome inside the caller's transaction. It returns
// true when the ledger actually changed. A repeat delivery of the same
// outcome, or a regression attempt against a settled row, changes nothing.
func (r *reconciler) Apply(ctx context.Context, tx *gorm.DB, payment *models.Payment, outcome Outcome) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reconciliation")
	}
	if payment == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment required")
	}
	if !outcome.Status.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status")
	}
	if payment.Status == outcome.Status {
		return false, nil
	}
	if !transitionAllowed(payment.Status, outcome.Status) {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"payment_id":  payment.ID.String(),
			"from_status": payment.Status.String(),
			"to_status":   outcome.Status.String(),
		})
		r.logg.Warn(logCtx, "ignoring payment status regression")
		return false, nil
	}

	action, err := actionForPaymentStatus(outcome.Status)
	if err != nil {
		return false, err
	}

	repo := r.repo.WithTx(tx)
	updates := map[string]any{"status": outcome.Status}
	if outcome.TransID != 0 {
		updates["external_transaction_id"] = strconv.FormatInt(outcome.TransID, 10)
	}
	if outcome.Raw != nil {
		updates["gateway_response_raw"] = outcome.Raw
	}
	if outcome.Status == enums.PaymentStatusCompleted {
		updates["paid_at"] = r.now().UTC()
	}
	if err := repo.Update(ctx, payment.ID, updates); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}

	var row struct {
		Status enums.OrderStatus
	}
	err = tx.WithContext(ctx).
		Model(&models.Order{}).
		Select("status").
		Where("id = ?", payment.OrderID).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order status")
	}
	orderStatus := row.Status

	metadata := map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	}
	if payment.GatewayOrderRef != nil {
		metadata["gateway_order_ref"] = *payment.GatewayOrderRef
	}
	if outcome.TransID != 0 {
		metadata["trans_id"] = outcome.TransID
	}
	if outcome.Message != "" {
		metadata["message"] = outcome.Message
	}

	if _, err := r.audit.Append(ctx, tx, auditlog.Entry{
		OrderID:    payment.OrderID,
		FromStatus: &orderStatus,
		ToStatus:   orderStatus,
		Action:     action,
		ActorType:  enums.ActorTypePaymentGateway,
		Metadata:   metadata,
	}); err != nil {
		return false, err
	}

	payment.Status = outcome.Status
	return true, nil
}

// HandleIPN verifies and applies one provider-pushed notification. The
// signature is checked before anything is read or written.
func (r *reconciler) HandleIPN(ctx context.Context, payload *momo.IPNPayload) error {
	if payload == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "empty notification payload")
	}
	if err := r.gateway.VerifyIPN(payload); err != nil {
		return err
	}

	outcome := Outcome{
		Status:  momo.StatusForResultCode(payload.ResultCode),
		TransID: payload.TransID,
		Message: payload.Message,
	}
	if raw, err := json.Marshal(payload); err == nil {
		outcome.Raw = raw
	}

	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		payment, err := repo.FindByGatewayRefForUpdate(ctx, payload.OrderRef)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payload.Amount != payment.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "notification amount does not match payment").
				WithDetails(map[string]any{"expected": payment.Amount, "received": payload.Amount})
		}

		applied, err := r.Apply(ctx, tx, payment, outcome)
		if err != nil {
			return err
		}
		if applied {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"payment_id": payment.ID.String(),
				"status":     payment.Status.String(),
			})
			r.logg.Info(logCtx, "payment settled from notification")
		}
		return nil
	})
}

// PollPending sweeps stale pending gateway payments and queries the
// provider for their real outcome. Transactions still waiting on the payer
// are left alone. Returns how many payments changed.
func (r *reconciler) PollPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := r.now().UTC().Add(-olderThan)
	stale, err := r.repo.FindStalePending(ctx, enums.PaymentMethodMoMo, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}

	var applied int
	var errs error
	for i := range stale {
		payment := stale[i]
		if payment.GatewayOrderRef == nil {
			continue
		}
		result, err := r.gateway.QueryStatus(ctx, *payment.GatewayOrderRef, uuid.NewString())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query %s: %w", payment.ID, err))
			continue
		}
		if result.ResultCode == momo.ResultCodePending {
			continue
		}

		outcome := Outcome{
			Status:  momo.StatusForResultCode(result.ResultCode),
			TransID: result.TransID,
			Message: result.Message,
		}
		if raw, err := json.Marshal(result); err == nil {
			outcome.Raw = raw
		}
		err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := r.repo.WithTx(tx)
			locked, err := repo.FindByGatewayRefForUpdate(ctx, *payment.GatewayOrderRef)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
			}
			changed, err := r.Apply(ctx, tx, locked, outcome)
			if changed {
				applied++
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("apply %s: %w", payment.ID, err))
		}
	}
	return applied, errs
}
