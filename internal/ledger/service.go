package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns order lifecycle and state transitions. All status mutation
// funnels through the guarded conditional update; nothing else writes status.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	ListOrders(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	SetPaymentCorrelation(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	CompleteIfPending(ctx context.Context, orderID uuid.UUID, txnID string) (bool, *models.Order, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	store config.StoreConfig
	logg  *logger.Logger
}

// NewService builds the ledger service with its required dependencies.
func NewService(repo Repository, tx txRunner, store config.StoreConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, store: store, logg: logg}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	subtotal := 0
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		lineTotal := in.Qty * in.UnitPriceCents
		subtotal += lineTotal
		items = append(items, models.OrderItem{
			MealID:         in.MealID,
			Name:           strings.TrimSpace(in.Name),
			Qty:            in.Qty,
			UnitPriceCents: in.UnitPriceCents,
			TotalCents:     lineTotal,
		})
	}

	tax, err := s.taxCents(subtotal)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:   newOrderNumber(),
		UserID:        input.UserID,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerEmail: strings.TrimSpace(input.CustomerEmail),
		CustomerPhone: strings.TrimSpace(input.CustomerPhone),
		Street:        strings.TrimSpace(input.Street),
		City:          strings.TrimSpace(input.City),
		State:         strings.TrimSpace(input.State),
		Zip:           strings.TrimSpace(input.Zip),
		Status:        enums.OrderStatusPending,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		Items:         items,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
		})
		s.logg.Info(logCtx, "order.created")
	}
	return order, nil
}

func (s *service) validateCreate(input CreateOrderInput) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if strings.TrimSpace(input.Street) == "" || strings.TrimSpace(input.City) == "" ||
		strings.TrimSpace(input.State) == "" || strings.TrimSpace(input.Zip) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "complete delivery address is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	totalQty := 0
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative")
		}
		if strings.TrimSpace(item.Name) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
		}
		totalQty += item.Qty
	}
	if totalQty < s.store.MinOrderQty {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order must contain at least %d meals", s.store.MinOrderQty)).
			WithDetails(map[string]any{"min_qty": s.store.MinOrderQty, "qty": totalQty})
	}

	if len(s.store.ServiceAreaZips) > 0 {
		zip := strings.TrimSpace(input.Zip)
		if !zipInServiceArea(zip, s.store.ServiceAreaZips) {
			return pkgerrors.New(pkgerrors.CodeValidation, "address is outside the delivery area").
				WithDetails(map[string]any{"zip": zip})
		}
	}
	return nil
}

// zipInServiceArea matches either a full ZIP or a configured prefix.
func zipInServiceArea(zip string, area []string) bool {
	for _, candidate := range area {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if zip == candidate || strings.HasPrefix(zip, candidate) {
			return true
		}
	}
	return false
}

func (s *service) taxCents(subtotalCents int) (int, error) {
	rate := strings.TrimSpace(s.store.TaxRatePercent)
	if rate == "" || rate == "0" {
		return 0, nil
	}
	pct, err := decimal.NewFromString(rate)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid tax rate configuration")
	}
	tax := decimal.NewFromInt(int64(subtotalCents)).
		Mul(pct).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return int(tax.IntPart()), nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err, "order")
	}
	return order, nil
}

func (s *service) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.repo.FindByOrderNumber(ctx, strings.TrimSpace(orderNumber))
	if err != nil {
		return nil, mapFindError(err, "order")
	}
	return order, nil
}

func (s *service) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	order, err := s.repo.FindByPaymentRef(ctx, strings.TrimSpace(paymentRef))
	if err != nil {
		return nil, mapFindError(err, "order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	orders, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return orders, nil
}

// Transition applies a privileged status edit. Re-requesting the current
// status is a no-op, not an error; anything off the graph is rejected.
func (s *service) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err, "order")
	}

	if order.Status == target {
		return order, nil
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, target)).
			WithDetails(map[string]any{"from": string(order.Status), "to": string(target)})
	}

	moved, err := s.repo.UpdateStatusIf(ctx, orderID, order.Status, target, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
	}
	if !moved {
		// Lost a race. Re-read; arriving at the target some other way still
		// counts as success.
		current, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, mapFindError(err, "order")
		}
		if current.Status == target {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order moved to %s concurrently", current.Status))
	}

	order.Status = target
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"status": string(target)})
		s.logg.Info(logCtx, "order.transitioned")
	}
	return order, nil
}

// SetPaymentCorrelation stores the gateway reference while the order is still
// PENDING. Once payment has resolved the correlation is frozen.
func (s *service) SetPaymentCorrelation(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	moved, err := s.repo.UpdateStatusIf(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusPending,
		map[string]any{"payment_ref": ref})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing payment reference")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	return nil
}

// CompleteIfPending is the serialization point for the racing payment paths.
// The boolean reports whether this caller performed the PENDING to PAID
// transition; callers derive every side effect from that observation.
func (s *service) CompleteIfPending(ctx context.Context, orderID uuid.UUID, txnID string) (bool, *models.Order, error) {
	updates := map[string]any{}
	if trimmed := strings.TrimSpace(txnID); trimmed != "" {
		updates["payment_txn_id"] = trimmed
	}

	moved, err := s.repo.UpdateStatusIf(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusPaid, updates)
	if err != nil {
		return false, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "completing order")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return moved, nil, mapFindError(err, "order")
	}

	if !moved {
		// Duplicate invocation. Already PAID or later is success, not error.
		if order.Status == enums.OrderStatusPending {
			return false, order, pkgerrors.New(pkgerrors.CodeInternal, "conditional update missed a pending order")
		}
		return false, order, nil
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"payment_txn_id": strings.TrimSpace(txnID)})
		s.logg.Info(logCtx, "order.paid")
	}
	return true, order, nil
}

// ExpirePendingBefore fails PENDING orders older than the cutoff. Per-order
// failures are collected so one bad row cannot stall the sweep.
func (s *service) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	orders, err := s.repo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stale orders")
	}

	expired := 0
	var errs error
	for _, order := range orders {
		moved, err := s.repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusFailed, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if moved {
			expired++
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, order.ID.String())
				s.logg.Info(logCtx, "order.expired")
			}
		}
	}
	return expired, errs
}

func mapFindError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading "+entity)
}

func newOrderNumber() string {
	stamp := time.Now().UTC().Format("20060102")
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PLT-%s-%s", stamp, suffix)
}
