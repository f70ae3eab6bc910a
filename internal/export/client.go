package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db/models"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Exporter pushes paid orders to the accounting system. Best effort; a
// failed export is logged and picked up by a manual reconciliation report.
type Exporter interface {
	ExportPaidOrder(ctx context.Context, order *models.Order) error
}

// Client posts paid-order records to the accounting HTTP endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the accounting export client from configuration.
func NewClient(cfg config.AccountingConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("accounting base url is required")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type exportLine struct {
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
	TotalCents     int    `json:"total_cents"`
}

type exportRecord struct {
	OrderNumber   string       `json:"order_number"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	SubtotalCents int          `json:"subtotal_cents"`
	TaxCents      int          `json:"tax_cents"`
	TotalCents    int          `json:"total_cents"`
	TransactionID string       `json:"transaction_id,omitempty"`
	PaidAt        time.Time    `json:"paid_at"`
	Lines         []exportLine `json:"lines"`
}

// ExportPaidOrder sends one paid order as a sales record.
func (c *Client) ExportPaidOrder(ctx context.Context, order *models.Order) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "accounting client not configured")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	record := exportRecord{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		SubtotalCents: order.SubtotalCents,
		TaxCents:      order.TaxCents,
		TotalCents:    order.TotalCents,
		PaidAt:        time.Now().UTC(),
	}
	if order.PaymentTxnID != nil {
		record.TransactionID = *order.PaymentTxnID
	}
	for _, item := range order.Items {
		record.Lines = append(record.Lines, exportLine{
			Description:    item.Name,
			Quantity:       item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}

	body, err := json.Marshal(record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode export record")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sales", bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build export request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute export request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"export request rejected")
	}
	return nil
}
