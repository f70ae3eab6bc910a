package square

import (
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
)

// PaymentLinkLineItem is a single purchasable line on a hosted checkout page.
type PaymentLinkLineItem struct {
	Name        string
	Quantity    int
	AmountCents int64
	Currency    string
}

// PaymentLinkCreateParams contains the fields required to build a hosted Square checkout link.
type PaymentLinkCreateParams struct {
	LocationID     string
	ReferenceID    string
	LineItems      []PaymentLinkLineItem
	RedirectURL    string
	Description    string
	IdempotencyKey string
}

func (p PaymentLinkCreateParams) toSquareRequest(idempotencyKey string) *sqcheckout.CreatePaymentLinkRequest {
	order := &sq.Order{
		LocationID: p.LocationID,
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		order.ReferenceID = ptrString(trimmed)
	}
	for _, item := range p.LineItems {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		order.LineItems = append(order.LineItems, &sq.OrderLineItem{
			Name:           ptrString(item.Name),
			Quantity:       fmt.Sprintf("%d", qty),
			BasePriceMoney: moneyPtr(item.AmountCents, item.Currency),
		})
	}

	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order:          order,
	}
	if trimmed := strings.TrimSpace(p.Description); trimmed != "" {
		req.Description = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.RedirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{
			RedirectURL: ptrString(trimmed),
		}
	}
	return req
}

// PaymentCreateParams encapsulates the inputs for a direct Square card charge.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	BuyerEmail     string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(p.LocationID),
		SourceID:       p.SourceID,
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, p.Currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.BuyerEmail); trimmed != "" {
		req.BuyerEmailAddress = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
