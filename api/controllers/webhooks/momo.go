package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nmtruong/fulfillment-backend/internal/payments"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
)

// MoMoIPN receives provider-pushed payment notifications. The provider
// retries any non-2xx response, so the endpoint acknowledges with 204
// even when processing fails: a bad signature mutates nothing, and an
// internal failure is logged for manual reconciliation instead of being
// surfaced as an error status.
func MoMoIPN(reconciler payments.Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			if logg != nil {
				logg.Error(ctx, "momo ipn received with no reconciler wired", pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "momo ipn body unreadable", err)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var payload momo.IPNPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			if logg != nil {
				ctx = logg.WithField(ctx, "body_len", len(body))
				logg.Error(ctx, "momo ipn payload undecodable", err)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"gateway_order_ref": payload.OrderRef,
				"result_code":       payload.ResultCode,
			})
		}

		if err := reconciler.HandleIPN(ctx, &payload); err != nil {
			if logg != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeSignature) {
					logg.Warn(ctx, "momo ipn rejected: signature mismatch")
				} else {
					logg.Error(ctx, "momo ipn processing failed, needs manual reconciliation", err)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
