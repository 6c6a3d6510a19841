package auditlog

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/pagination"
)

// Entry describes one transition about to be recorded. Metadata is
// marshaled as-is into the event's metadata column.
type Entry struct {
	OrderID    uuid.UUID
	FromStatus *enums.OrderStatus
	ToStatus   enums.OrderStatus
	Action     enums.OrderAction
	ActorType  enums.ActorType
	ActorID    *uuid.UUID
	Note       *string
	Metadata   any
}

// Recorder appends to and reads the order audit trail. Rows are written
// inside the caller's transaction and are never updated afterwards.
type Recorder interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.OrderLogEvent, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID, params pagination.Params) ([]models.OrderLogEvent, string, error)
}

type recorder struct{}

// NewRecorder returns the database-backed audit trail recorder.
func NewRecorder() Recorder {
	return recorder{}
}

func (recorder) Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.OrderLogEvent, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for audit append")
	}
	if entry.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !entry.ToStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if !entry.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order action")
	}
	if !entry.ActorType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown actor type")
	}

	var metadata json.RawMessage
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit metadata")
		}
		metadata = encoded
	}

	event := &models.OrderLogEvent{
		ID:         uuid.New(),
		OrderID:    entry.OrderID,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		Action:     entry.Action,
		ActorType:  entry.ActorType,
		ActorID:    entry.ActorID,
		Note:       entry.Note,
		Metadata:   metadata,
	}
	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append audit event")
	}
	return event, nil
}

// ListByOrder returns events newest first with a cursor for the next page.
func (recorder) ListByOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID, params pagination.Params) ([]models.OrderLogEvent, string, error) {
	if db == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependency, "database handle required")
	}

	query := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var events []models.OrderLogEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit events")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(events) > limit {
		events = events[:limit]
		last := events[len(events)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return events, next, nil
}
