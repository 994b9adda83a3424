package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"checkout/internal/domain"
	listingpg "checkout/internal/repository/listing_repo/postgres"
	orderpg "checkout/internal/repository/order_repo/postgres"
)

type recordingEvictor struct {
	ids []string
}

func (e *recordingEvictor) Evict(_ context.Context, ids ...string) error {
	e.ids = append(e.ids, ids...)
	return nil
}

var orderColumns = []string{"id", "buyer_id", "total_amount", "status", "payment_method", "payment_phone", "created_at", "updated_at"}

func orderRow(id string, status domain.OrderStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderColumns).
		AddRow(id, "buyer-1", int64(5000), string(status), "PROVIDER_A", "+250788123456", now, now)
}

func newTestReconciler(t *testing.T) (Reconciler, sqlmock.Sqlmock, *recordingEvictor) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	evictor := &recordingEvictor{}
	r := NewReconciler(db, orderpg.NewOrderRepository(), listingpg.NewListingRepository(db, logger), evictor, logger)
	return r, mock, evictor
}

func TestReconcile_AllLinesSucceed(t *testing.T) {
	r, mock, evictor := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("abc123").
		WillReturnRows(orderRow("abc123", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings SET quantity_available = quantity_available - \$1`).
		WithArgs(2, "meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(int64(1500)))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WithArgs("abc123", "meal-1", 2, int64(1500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE food_listings SET quantity_available = quantity_available - \$1`).
		WithArgs(1, "meal-2").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(int64(2000)))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WithArgs("abc123", "meal-2", 1, int64(2000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusConfirmed, sqlmock.AnyArg(), "abc123", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), "abc123", []domain.SessionLine{
		{ItemID: "meal-1", Quantity: 2},
		{ItemID: "meal-2", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, "abc123", result.OrderID)
	assert.Equal(t, domain.Amount(1500), result.Lines[0].UnitPrice)
	assert.Equal(t, []string{"meal-1", "meal-2"}, evictor.ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_LastUnitGoesToOneOrder(t *testing.T) {
	r, mock, _ := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("order-a").
		WillReturnRows(orderRow("order-a", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(1, "meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(int64(5000)))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusConfirmed, sqlmock.AnyArg(), "order-a", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("order-b").
		WillReturnRows(orderRow("order-b", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(1, "meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"price"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusFailed, sqlmock.AnyArg(), "order-b", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lines := []domain.SessionLine{{ItemID: "meal-1", Quantity: 1}}
	_, err := r.Reconcile(context.Background(), "order-a", lines)
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background(), "order-b", lines)
	var recErr *domain.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "order-b", recErr.OrderID)
	require.Len(t, recErr.Lines, 1)
	assert.ErrorIs(t, recErr.Lines[0].Err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.KindReconciliation, domain.ErrorKind(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_PartialFailureAppliesNothing(t *testing.T) {
	r, mock, evictor := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("abc123").
		WillReturnRows(orderRow("abc123", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(1, "meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(int64(2500)))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(3, "meal-gone").
		WillReturnRows(sqlmock.NewRows([]string{"price"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("meal-gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(5, "meal-3").
		WillReturnRows(sqlmock.NewRows([]string{"price"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("meal-3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusFailed, sqlmock.AnyArg(), "abc123", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := r.Reconcile(context.Background(), "abc123", []domain.SessionLine{
		{ItemID: "meal-1", Quantity: 1},
		{ItemID: "meal-gone", Quantity: 3},
		{ItemID: "meal-3", Quantity: 5},
	})
	assert.Nil(t, result)

	var recErr *domain.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	require.Len(t, recErr.Lines, 2)
	assert.Equal(t, "meal-gone", recErr.Lines[0].ItemID)
	assert.ErrorIs(t, recErr.Lines[0].Err, domain.ErrListingNotFound)
	assert.Equal(t, "meal-3", recErr.Lines[1].ItemID)
	assert.ErrorIs(t, recErr.Lines[1].Err, domain.ErrInsufficientStock)
	assert.Empty(t, evictor.ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_DatabaseErrorAborts(t *testing.T) {
	r, mock, _ := newTestReconciler(t)
	dbErr := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("abc123").
		WillReturnRows(orderRow("abc123", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(1, "meal-1").
		WillReturnError(dbErr)
	mock.ExpectRollback()
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusFailed, sqlmock.AnyArg(), "abc123", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := r.Reconcile(context.Background(), "abc123", []domain.SessionLine{
		{ItemID: "meal-1", Quantity: 1},
		{ItemID: "meal-2", Quantity: 1},
	})
	var recErr *domain.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.ErrorIs(t, err, dbErr)
	assert.Len(t, recErr.Lines, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_AlreadyConfirmedIsIdempotent(t *testing.T) {
	r, mock, _ := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("abc123").
		WillReturnRows(orderRow("abc123", domain.OrderStatusConfirmed))
	mock.ExpectQuery(`SELECT order_id, item_id, quantity, unit_price FROM order_lines`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "item_id", "quantity", "unit_price"}).
			AddRow("abc123", "meal-1", 1, int64(5000)))
	mock.ExpectRollback()

	result, err := r.Reconcile(context.Background(), "abc123", []domain.SessionLine{{ItemID: "meal-1", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, domain.Amount(5000), result.Lines[0].UnitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_MissingOrder(t *testing.T) {
	r, mock, _ := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectRollback()
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := r.Reconcile(context.Background(), "ghost", []domain.SessionLine{{ItemID: "meal-1", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Equal(t, domain.KindReconciliation, domain.ErrorKind(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_WarnsWhenListingPriceChanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	r := NewReconciler(db, orderpg.NewOrderRepository(), listingpg.NewListingRepository(db, logger), nil, logger)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs("abc123").
		WillReturnRows(orderRow("abc123", domain.OrderStatusPending))
	mock.ExpectQuery(`UPDATE food_listings`).
		WithArgs(1, "meal-1").
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(int64(5500)))
	mock.ExpectExec(`INSERT INTO order_lines`).
		WithArgs("abc123", "meal-1", 1, int64(5500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(domain.OrderStatusConfirmed, sqlmock.AnyArg(), "abc123", domain.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := r.Reconcile(context.Background(), "abc123", []domain.SessionLine{{ItemID: "meal-1", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(5500), result.LinesTotal())

	warned := logs.FilterMessage("Order total differs from listing prices at reconciliation").All()
	require.Len(t, warned, 1)
	assert.Equal(t, int64(5000), warned[0].ContextMap()["charged"])
	assert.Equal(t, int64(5500), warned[0].ContextMap()["listed"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
