package payments

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/platterly/platterly-backend/pkg/db/models"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/square"
)

// taxThresholdCents filters out rounding noise. A tax amount at or below one
// cent never becomes its own charge line.
const taxThresholdCents = 1

const taxLineName = "Sales Tax"

// buildChargeLines renders the order's monetary breakdown for the gateway:
// one line per item plus a single aggregated tax line when tax clears the
// threshold. The gateway receives exactly what we charged, line by line.
func buildChargeLines(order *models.Order) ([]square.PaymentLinkLineItem, error) {
	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}

	lines := make([]square.PaymentLinkLineItem, 0, len(order.Items)+1)
	lineTotal := decimal.Zero
	for _, item := range order.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %q has non-positive quantity", item.Name))
		}
		lines = append(lines, square.PaymentLinkLineItem{
			Name:        item.Name,
			Quantity:    item.Qty,
			AmountCents: int64(item.UnitPriceCents),
		})
		lineTotal = lineTotal.Add(
			decimal.NewFromInt(int64(item.UnitPriceCents)).Mul(decimal.NewFromInt(int64(item.Qty))))
	}

	// The item lines must reproduce the stored subtotal exactly. A mismatch
	// means the order rows were tampered with or a rounding bug crept in.
	if !lineTotal.Equal(decimal.NewFromInt(int64(order.SubtotalCents))) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("order %s breakdown %s does not match subtotal %d",
				order.OrderNumber, lineTotal.String(), order.SubtotalCents))
	}

	if order.TaxCents > taxThresholdCents {
		lines = append(lines, square.PaymentLinkLineItem{
			Name:        taxLineName,
			Quantity:    1,
			AmountCents: int64(order.TaxCents),
		})
	}
	return lines, nil
}
