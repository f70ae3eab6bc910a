package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/maps"
)

type stubGeocoder struct {
	point *maps.LatLng
	err   error
	calls int
}

func (s *stubGeocoder) Geocode(ctx context.Context, address string) (*maps.LatLng, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.point, nil
}

type stubOrderSource struct {
	orders []models.Order
}

func (s *stubOrderSource) FindPaidWithoutDelivery(ctx context.Context, limit int) ([]models.Order, error) {
	return s.orders, nil
}

type stubDeliveryRepo struct {
	mu      sync.Mutex
	byOrder map[uuid.UUID]*models.Delivery
	byID    map[uuid.UUID]*models.Delivery
}

func newStubDeliveryRepo() *stubDeliveryRepo {
	return &stubDeliveryRepo{
		byOrder: map[uuid.UUID]*models.Delivery{},
		byID:    map[uuid.UUID]*models.Delivery{},
	}
}

func (s *stubDeliveryRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubDeliveryRepo) Create(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOrder[delivery.OrderID]; exists {
		return nil, &pgconn.PgError{Code: "23505", ConstraintName: "idx_deliveries_order_id"}
	}
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	clone := *delivery
	s.byOrder[delivery.OrderID] = &clone
	s.byID[delivery.ID] = &clone
	return delivery, nil
}

func (s *stubDeliveryRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *delivery
	return &clone, nil
}

func (s *stubDeliveryRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byOrder[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *delivery
	return &clone, nil
}

func (s *stubDeliveryRepo) ListByStatus(ctx context.Context, status enums.DeliveryStatus, limit int) ([]models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Delivery
	for _, d := range s.byID {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubDeliveryRepo) ListUnrouted(ctx context.Context, limit int) ([]models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Delivery
	for _, d := range s.byID {
		if d.RouteID == nil && d.Status == enums.DeliveryStatusPending {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubDeliveryRepo) ListByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Delivery, error) {
	return nil, nil
}

func (s *stubDeliveryRepo) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Delivery
	for _, d := range s.byID {
		if d.DriverID != nil && *d.DriverID == driverID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubDeliveryRepo) Update(ctx context.Context, deliveryID uuid.UUID, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[deliveryID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(enums.DeliveryStatus); ok {
		delivery.Status = status
	}
	if raw, ok := updates["driver_id"]; ok {
		if raw == nil {
			delivery.DriverID = nil
		} else if id, ok := raw.(uuid.UUID); ok {
			delivery.DriverID = &id
		}
	}
	if v, ok := updates["signed_by"].(string); ok {
		delivery.SignedBy = &v
	}
	return nil
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:     uuid.New(),
		Status: enums.OrderStatusPaid,
		Street: "800 N Central Ave", City: "Phoenix", State: "AZ", Zip: "85004",
	}
}

func TestEnsureDeliveryCreatesWithCoordinates(t *testing.T) {
	repo := newStubDeliveryRepo()
	geo := &stubGeocoder{point: &maps.LatLng{Lat: 33.45, Lng: -112.07}}
	svc, err := NewService(repo, &stubOrderSource{}, geo, nil)
	require.NoError(t, err)

	order := paidOrder()
	delivery, err := svc.EnsureDelivery(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusPending, delivery.Status)
	assert.True(t, delivery.HasCoordinates())
	assert.Equal(t, order.ID, delivery.OrderID)
}

func TestEnsureDeliverySurvivesGeocodeFailure(t *testing.T) {
	repo := newStubDeliveryRepo()
	geo := &stubGeocoder{err: errors.New("geocoder down")}
	svc, err := NewService(repo, &stubOrderSource{}, geo, nil)
	require.NoError(t, err)

	delivery, err := svc.EnsureDelivery(context.Background(), paidOrder())
	require.NoError(t, err)
	assert.False(t, delivery.HasCoordinates())
}

func TestEnsureDeliveryIsIdempotent(t *testing.T) {
	repo := newStubDeliveryRepo()
	geo := &stubGeocoder{point: &maps.LatLng{Lat: 1, Lng: 2}}
	svc, err := NewService(repo, &stubOrderSource{}, geo, nil)
	require.NoError(t, err)

	order := paidOrder()
	first, err := svc.EnsureDelivery(context.Background(), order)
	require.NoError(t, err)

	second, err := svc.EnsureDelivery(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, geo.calls, "existing delivery must not re-geocode")
}

func TestEnsureDeliveryRejectsUnpaidOrder(t *testing.T) {
	repo := newStubDeliveryRepo()
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	order := paidOrder()
	order.Status = enums.OrderStatusPending
	_, err = svc.EnsureDelivery(context.Background(), order)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

// racingRepo hides the existing row from the first FindByOrderID so the
// service takes the create path and collides with the unique index.
type racingRepo struct {
	*stubDeliveryRepo
	finds int
}

func (r *racingRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	r.finds++
	if r.finds == 1 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.stubDeliveryRepo.FindByOrderID(ctx, orderID)
}

func TestEnsureDeliveryConvergesOnUniqueViolation(t *testing.T) {
	inner := newStubDeliveryRepo()
	repo := &racingRepo{stubDeliveryRepo: inner}
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	order := paidOrder()
	winner, err := inner.Create(context.Background(), &models.Delivery{
		OrderID: order.ID,
		Status:  enums.DeliveryStatusPending,
	})
	require.NoError(t, err)

	got, err := svc.EnsureDelivery(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 2, repo.finds)
}

func TestAssignDriverMovesInProgress(t *testing.T) {
	repo := newStubDeliveryRepo()
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	delivery, err := svc.EnsureDelivery(context.Background(), paidOrder())
	require.NoError(t, err)

	driverID := uuid.New()
	updated, err := svc.AssignDriver(context.Background(), delivery.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusInProgress, updated.Status)
	require.NotNil(t, updated.DriverID)
	assert.Equal(t, driverID, *updated.DriverID)
}

func TestUnassignDriverReturnsToPending(t *testing.T) {
	repo := newStubDeliveryRepo()
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	delivery, err := svc.EnsureDelivery(context.Background(), paidOrder())
	require.NoError(t, err)

	_, err = svc.AssignDriver(context.Background(), delivery.ID, uuid.New())
	require.NoError(t, err)

	updated, err := svc.UnassignDriver(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusPending, updated.Status)
	assert.Nil(t, updated.DriverID)
}

func TestUpdateStatusRecordsProofAndTimestamp(t *testing.T) {
	repo := newStubDeliveryRepo()
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	delivery, err := svc.EnsureDelivery(context.Background(), paidOrder())
	require.NoError(t, err)

	signed := "R. Alvarez"
	updated, err := svc.UpdateStatus(context.Background(), delivery.ID, enums.DeliveryStatusDelivered, &ProofInput{SignedBy: &signed})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivered, updated.Status)
	assert.NotNil(t, updated.DeliveredAt)
	require.NotNil(t, updated.SignedBy)
	assert.Equal(t, signed, *updated.SignedBy)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	repo := newStubDeliveryRepo()
	svc, err := NewService(repo, &stubOrderSource{}, nil, nil)
	require.NoError(t, err)

	delivery, err := svc.EnsureDelivery(context.Background(), paidOrder())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), delivery.ID, enums.DeliveryStatus("teleported"), nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestBackfillDeliveries(t *testing.T) {
	repo := newStubDeliveryRepo()
	orders := &stubOrderSource{orders: []models.Order{*paidOrder(), *paidOrder()}}
	svc, err := NewService(repo, orders, nil, nil)
	require.NoError(t, err)

	created, err := svc.BackfillDeliveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// Running again finds the same orders but converges without duplicates.
	created, err = svc.BackfillDeliveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Len(t, repo.byID, 2)
}
