package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterly/platterly-backend/pkg/db/models"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

func TestBuildChargeLinesWithTax(t *testing.T) {
	order := &models.Order{
		OrderNumber:   "PLT-20260829-ABCD1234",
		SubtotalCents: 13990,
		TaxCents:      1203,
		TotalCents:    15193,
		Items: []models.OrderItem{
			{Name: "Chicken Tinga Bowl", Qty: 10, UnitPriceCents: 1399, TotalCents: 13990},
		},
	}

	lines, err := buildChargeLines(order)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Chicken Tinga Bowl", lines[0].Name)
	assert.Equal(t, 10, lines[0].Quantity)
	assert.Equal(t, int64(1399), lines[0].AmountCents)
	assert.Equal(t, "Sales Tax", lines[1].Name)
	assert.Equal(t, 1, lines[1].Quantity)
	assert.Equal(t, int64(1203), lines[1].AmountCents)
}

func TestBuildChargeLinesSkipsRoundingNoiseTax(t *testing.T) {
	order := &models.Order{
		SubtotalCents: 500,
		TaxCents:      1,
		TotalCents:    501,
		Items: []models.OrderItem{
			{Name: "Side Salad", Qty: 1, UnitPriceCents: 500, TotalCents: 500},
		},
	}

	lines, err := buildChargeLines(order)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Side Salad", lines[0].Name)
}

func TestBuildChargeLinesMultipleItems(t *testing.T) {
	order := &models.Order{
		SubtotalCents: 4297,
		TotalCents:    4297,
		Items: []models.OrderItem{
			{Name: "Carne Asada Plate", Qty: 2, UnitPriceCents: 1599, TotalCents: 3198},
			{Name: "Horchata", Qty: 1, UnitPriceCents: 1099, TotalCents: 1099},
		},
	}

	lines, err := buildChargeLines(order)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestBuildChargeLinesRejectsMismatchedSubtotal(t *testing.T) {
	order := &models.Order{
		SubtotalCents: 9999,
		TotalCents:    9999,
		Items: []models.OrderItem{
			{Name: "Side Salad", Qty: 1, UnitPriceCents: 500, TotalCents: 500},
		},
	}

	_, err := buildChargeLines(order)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInternal, typed.Code())
}

func TestBuildChargeLinesRejectsEmptyOrder(t *testing.T) {
	_, err := buildChargeLines(&models.Order{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
