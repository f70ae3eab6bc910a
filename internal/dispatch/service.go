package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
	"github.com/platterly/platterly-backend/pkg/maps"
)

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*maps.LatLng, error)
}

// PaidOrderSource lists paid orders that still lack a delivery.
type PaidOrderSource interface {
	FindPaidWithoutDelivery(ctx context.Context, limit int) ([]models.Order, error)
}

// ProofInput is the optional proof-of-delivery payload.
type ProofInput struct {
	SignedBy     *string
	SignatureURL *string
	PhotoURL     *string
}

// Service materializes and mutates deliveries. Creation is idempotent per
// order; the unique index on order_id is the last line of defense.
type Service interface {
	EnsureDelivery(ctx context.Context, order *models.Order) (*models.Delivery, error)
	GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, status enums.DeliveryStatus, limit int) ([]models.Delivery, error)
	ListDriverDeliveries(ctx context.Context, driverID uuid.UUID) ([]models.Delivery, error)
	AssignDriver(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	UnassignDriver(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
	UpdateStatus(ctx context.Context, deliveryID uuid.UUID, status enums.DeliveryStatus, proof *ProofInput) (*models.Delivery, error)
	BackfillDeliveries(ctx context.Context) (int, error)
}

type service struct {
	repo     Repository
	orders   PaidOrderSource
	geocoder Geocoder
	logg     *logger.Logger
}

// NewService builds the dispatcher with its required dependencies. The
// geocoder may be nil; deliveries are then created without coordinates.
func NewService(repo Repository, orders PaidOrderSource, geocoder Geocoder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("paid order source required")
	}
	return &service{repo: repo, orders: orders, geocoder: geocoder, logg: logg}, nil
}

func paidOrLater(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPaid, enums.OrderStatusCompleted, enums.OrderStatusDelivered:
		return true
	}
	return false
}

func (s *service) EnsureDelivery(ctx context.Context, order *models.Order) (*models.Delivery, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if !paidOrLater(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s is %s, not paid", order.ID, order.Status))
	}

	existing, err := s.repo.FindByOrderID(ctx, order.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading delivery")
	}

	delivery := &models.Delivery{
		OrderID: order.ID,
		Status:  enums.DeliveryStatusPending,
	}

	// Geocoding is best-effort. A failure still creates the delivery, just
	// without coordinates.
	if s.geocoder != nil {
		point, err := s.geocoder.Geocode(ctx, order.ShippingAddress())
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, order.ID.String())
				s.logg.Warn(logCtx, "dispatch.geocode_failed: "+err.Error())
			}
		} else if point != nil {
			delivery.Lat = &point.Lat
			delivery.Lng = &point.Lng
		}
	}

	created, err := s.repo.Create(ctx, delivery)
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			// Another completion path won the insert. Converge on its row.
			winner, findErr := s.repo.FindByOrderID(ctx, order.ID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "loading delivery after conflict")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating delivery")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithDeliveryID(logCtx, created.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"geocoded": created.HasCoordinates()})
		s.logg.Info(logCtx, "delivery.created")
	}
	return created, nil
}

func (s *service) GetDelivery(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return delivery, nil
}

func (s *service) ListDeliveries(ctx context.Context, status enums.DeliveryStatus, limit int) ([]models.Delivery, error) {
	if status != "" && !status.IsKnown() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status")
	}
	deliveries, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing deliveries")
	}
	return deliveries, nil
}

func (s *service) ListDriverDeliveries(ctx context.Context, driverID uuid.UUID) ([]models.Delivery, error) {
	deliveries, err := s.repo.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing driver deliveries")
	}
	return deliveries, nil
}

// AssignDriver attaches a driver and moves the delivery in progress. A driver
// is never attached to a terminal delivery.
func (s *service) AssignDriver(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, mapFindError(err)
	}
	if delivery.Status == enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery already completed")
	}

	updates := map[string]any{
		"driver_id": driverID,
		"status":    enums.DeliveryStatusInProgress,
	}
	if err := s.repo.Update(ctx, deliveryID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning driver")
	}

	delivery.DriverID = &driverID
	delivery.Status = enums.DeliveryStatusInProgress
	if s.logg != nil {
		logCtx := s.logg.WithDeliveryID(ctx, deliveryID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"driver_id": driverID.String()})
		s.logg.Info(logCtx, "delivery.driver_assigned")
	}
	return delivery, nil
}

func (s *service) UnassignDriver(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, mapFindError(err)
	}
	if delivery.Status == enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery already completed")
	}

	updates := map[string]any{
		"driver_id": nil,
		"status":    enums.DeliveryStatusPending,
	}
	if err := s.repo.Update(ctx, deliveryID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unassigning driver")
	}

	delivery.DriverID = nil
	delivery.Status = enums.DeliveryStatusPending
	return delivery, nil
}

// UpdateStatus accepts any known status value. Unrecognized strings are
// rejected; ordering between known statuses is not enforced here because
// drivers report out of order in the field.
func (s *service) UpdateStatus(ctx context.Context, deliveryID uuid.UUID, status enums.DeliveryStatus, proof *ProofInput) (*models.Delivery, error) {
	if !status.IsKnown() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status")
	}

	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, mapFindError(err)
	}

	updates := map[string]any{"status": status}
	if status == enums.DeliveryStatusDelivered {
		now := time.Now().UTC()
		updates["delivered_at"] = now
		delivery.DeliveredAt = &now
	}
	if proof != nil {
		if v := trimPtr(proof.SignedBy); v != nil {
			updates["signed_by"] = *v
			delivery.SignedBy = v
		}
		if v := trimPtr(proof.SignatureURL); v != nil {
			updates["signature_url"] = *v
			delivery.SignatureURL = v
		}
		if v := trimPtr(proof.PhotoURL); v != nil {
			updates["photo_url"] = *v
			delivery.PhotoURL = v
		}
	}

	if err := s.repo.Update(ctx, deliveryID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating delivery status")
	}

	delivery.Status = status
	if s.logg != nil {
		logCtx := s.logg.WithDeliveryID(ctx, deliveryID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"status": string(status)})
		s.logg.Info(logCtx, "delivery.status_updated")
	}
	return delivery, nil
}

// BackfillDeliveries sweeps paid orders that never got a delivery and
// materializes one for each. Safe to run repeatedly.
func (s *service) BackfillDeliveries(ctx context.Context) (int, error) {
	orders, err := s.orders.FindPaidWithoutDelivery(ctx, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing paid orders without delivery")
	}

	created := 0
	var errs error
	for i := range orders {
		if _, err := s.EnsureDelivery(ctx, &orders[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", orders[i].ID, err))
			continue
		}
		created++
	}
	return created, errs
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "delivery not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading delivery")
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
