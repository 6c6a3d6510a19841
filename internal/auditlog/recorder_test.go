package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/pagination"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	events := `
CREATE TABLE IF NOT EXISTS order_log_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_type TEXT NOT NULL,
  actor_id TEXT,
  note TEXT,
  metadata TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(events).Error)
	return db
}

func TestRecorderAppendWritesImmutableRow(t *testing.T) {
	db := setupAuditTestDB(t)
	recorder := NewRecorder()
	ctx := context.Background()

	orderID := uuid.New()
	from := enums.OrderStatusPendingConfirmation
	event, err := recorder.Append(ctx, db, Entry{
		OrderID:    orderID,
		FromStatus: &from,
		ToStatus:   enums.OrderStatusPendingPickup,
		Action:     enums.OrderActionConfirmed,
		ActorType:  enums.ActorTypeAdmin,
		Metadata:   map[string]any{"tracking_number": "TN-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.NotEqual(t, uuid.Nil, event.ID)

	var stored models.OrderLogEvent
	require.NoError(t, db.Where("id = ?", event.ID).First(&stored).Error)
	assert.Equal(t, orderID, stored.OrderID)
	require.NotNil(t, stored.FromStatus)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, *stored.FromStatus)
	assert.Equal(t, enums.OrderStatusPendingPickup, stored.ToStatus)
	assert.Equal(t, enums.OrderActionConfirmed, stored.Action)
	assert.Contains(t, string(stored.Metadata), "TN-1")
}

func TestRecorderAppendAllowsNilFromStatusForCreation(t *testing.T) {
	db := setupAuditTestDB(t)
	recorder := NewRecorder()

	event, err := recorder.Append(context.Background(), db, Entry{
		OrderID:   uuid.New(),
		ToStatus:  enums.OrderStatusPendingConfirmation,
		Action:    enums.OrderActionCreated,
		ActorType: enums.ActorTypeCustomer,
	})
	require.NoError(t, err)
	assert.Nil(t, event.FromStatus)
}

func TestRecorderAppendValidatesEnums(t *testing.T) {
	db := setupAuditTestDB(t)
	recorder := NewRecorder()

	_, err := recorder.Append(context.Background(), db, Entry{
		OrderID:   uuid.New(),
		ToStatus:  enums.OrderStatus("bogus"),
		Action:    enums.OrderActionCreated,
		ActorType: enums.ActorTypeSystem,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRecorderListByOrderPaginatesNewestFirst(t *testing.T) {
	db := setupAuditTestDB(t)
	recorder := NewRecorder()
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	actions := []enums.OrderAction{
		enums.OrderActionCreated,
		enums.OrderActionConfirmed,
		enums.OrderActionPickedUp,
	}
	for i, action := range actions {
		require.NoError(t, db.Create(&models.OrderLogEvent{
			ID:        uuid.New(),
			OrderID:   orderID,
			ToStatus:  enums.OrderStatusShipping,
			Action:    action,
			ActorType: enums.ActorTypeAdmin,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	// Another order's events must not leak into the listing.
	require.NoError(t, db.Create(&models.OrderLogEvent{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		ToStatus:  enums.OrderStatusCancelled,
		Action:    enums.OrderActionCancelled,
		ActorType: enums.ActorTypeAdmin,
		CreatedAt: base,
	}).Error)

	page, next, err := recorder.ListByOrder(ctx, db, orderID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, enums.OrderActionPickedUp, page[0].Action)
	assert.Equal(t, enums.OrderActionConfirmed, page[1].Action)
	require.NotEmpty(t, next)

	rest, last, err := recorder.ListByOrder(ctx, db, orderID, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, enums.OrderActionCreated, rest[0].Action)
	assert.Empty(t, last)
}
