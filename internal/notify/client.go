package notify

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

const (
	defaultBaseURL             = "https://api.sendgrid.com/v3"
	responseBodyReadLimit int64 = 1024
)

// Mailer sends transactional email. Failures are logged by callers and never
// block order processing.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// Client is a thin SendGrid v3 mail/send client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fromEmail  string
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

// WithBaseURL overrides the SendGrid API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the mailer from configuration.
func NewClient(cfg config.SendgridConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, fmt.Errorf("sendgrid from address is required")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		fromEmail:  from,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailPersonalization struct {
	To      []mailAddress `json:"to"`
	Subject string        `json:"subject"`
}

type mailRequest struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Content          []mailContent         `json:"content"`
}

// SendOrderConfirmation emails the customer that payment was received and
// the order is headed for dispatch.
func (c *Client) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mail client not configured")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	to := strings.TrimSpace(order.CustomerEmail)
	if to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no customer email")
	}

	payload := mailRequest{
		Personalizations: []mailPersonalization{{
			To:      []mailAddress{{Email: to, Name: order.CustomerName}},
			Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		}},
		From:    mailAddress{Email: c.fromEmail, Name: "Platterly"},
		Content: []mailContent{{Type: "text/plain", Value: confirmationBody(order)}},
	}
	return c.send(ctx, payload)
}

func confirmationBody(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.CustomerName)
	fmt.Fprintf(&b, "We received your payment for order %s.\n\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %d x %s\n", item.Qty, item.Name)
	}
	fmt.Fprintf(&b, "\nTotal charged: $%.2f\n", float64(order.TotalCents)/100)
	b.WriteString("\nYour delivery is being scheduled. We'll let you know when a driver is on the way.\n")
	return b.String()
}

func (c *Client) send(ctx context.Context, payload mailRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mail request")
	}

	requestURL := strings.TrimRight(c.baseURL, "/") + "/mail/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mail request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mail request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"mail request rejected")
	}
	return nil
}
