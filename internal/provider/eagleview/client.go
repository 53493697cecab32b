package eagleview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
)

const (
	endpointSubmit = "submit_order"
	endpointStatus = "order_status"
	endpointReport = "order_report"
	maxErrorBody   = 512
)

type Recorder interface {
	RecordCall(ctx context.Context, entry domain.UsageEntry)
}

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
	Timeout      time.Duration
}

// Client talks to the live Tier-2 API. Tokens come from the client
// credentials grant and are cached by the oauth2 transport until shortly
// before they expire.
type Client struct {
	cfg        Config
	httpClient *http.Client
	recorder   Recorder
	clock      clock.Clock
	logger     *zap.Logger
}

func NewClient(cfg Config, recorder Recorder, clk clock.Clock, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := &http.Client{Timeout: timeout}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		recorder:   recorder,
		clock:      clk,
		logger:     logger,
	}
}

func (c *Client) Simulated() bool {
	return false
}

type submitRequest struct {
	Address            submitAddress `json:"address"`
	ReportType         string        `json:"reportType"`
	DeliveryPreference string        `json:"deliveryPreference"`
}

type submitAddress struct {
	StreetAddress string  `json:"streetAddress"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

type submitResponse struct {
	OrderID json.RawMessage `json:"orderId"`
	ID      json.RawMessage `json:"id"`
}

// productID maps a report type to the provider's product code.
func productID(rt domain.ReportType) string {
	if rt == domain.ReportTypeBasic {
		return "11"
	}
	return "PremiumRoofMeasurement"
}

// SubmitOrder places a billed Tier-2 order and returns the provider's order
// id. The report cost is recorded only when the provider accepts the order.
func (c *Client) SubmitOrder(ctx context.Context, address string, lat, lng float64, rt domain.ReportType) (string, error) {
	payload, err := json.Marshal(submitRequest{
		Address:            submitAddress{StreetAddress: address, Latitude: lat, Longitude: lng},
		ReportType:         productID(rt),
		DeliveryPreference: "IMMEDIATE",
	})
	if err != nil {
		return "", apperrors.NewInternalError("encoding order request", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, endpointSubmit, address, c.cfg.BaseURL+"/v1/orders", payload, func(status int, _ []byte) decimal.Decimal {
		if accepted(status) {
			return domain.ReportCost(rt)
		}
		return decimal.Zero
	})
	if err != nil {
		return "", err
	}
	if !accepted(status) {
		return "", apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointSubmit, fmt.Errorf("status %d: %s", status, truncate(body)))
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointSubmit, fmt.Errorf("decoding response: %w", err))
	}

	id := rawID(resp.OrderID)
	if id == "" {
		id = rawID(resp.ID)
	}
	if id == "" {
		return "", apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointSubmit, fmt.Errorf("response missing order id"))
	}
	return id, nil
}

func (c *Client) PollStatus(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpointStatus, "", c.orderURL(providerOrderID, "status"), nil, nil)
	if err != nil {
		return domain.ProviderStatus{}, err
	}
	if status != http.StatusOK {
		return domain.ProviderStatus{}, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointStatus, fmt.Errorf("status %d: %s", status, truncate(body)))
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ProviderStatus{}, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointStatus, fmt.Errorf("decoding response: %w", err))
	}

	return domain.ParseProviderStatus(resp.Status, resp.Message), nil
}

func (c *Client) FetchReport(ctx context.Context, providerOrderID string) (*domain.Measurement, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpointReport, "", c.orderURL(providerOrderID, "report"), nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointReport, fmt.Errorf("status %d: %s", status, truncate(body)))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointReport, fmt.Errorf("decoding response: %w", err))
	}

	m := normalizeReport(raw, domain.SourceEagleView, c.clock.Now())
	return &m, nil
}

func (c *Client) orderURL(providerOrderID, suffix string) string {
	return fmt.Sprintf("%s/v1/orders/%s/%s", c.cfg.BaseURL, url.PathEscape(providerOrderID), suffix)
}

// do performs one call and records it. cost decides the billed amount from
// the response status; nil means the call is free.
func (c *Client) do(
	ctx context.Context,
	method string,
	endpoint string,
	address string,
	rawURL string,
	payload []byte,
	cost func(status int, body []byte) decimal.Decimal,
) (int, []byte, error) {
	start := c.clock.Now()
	entry := domain.UsageEntry{
		Provider: domain.ProviderEagleView,
		Endpoint: endpoint,
		Method:   method,
		Cost:     decimal.Zero,
		Address:  address,
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return 0, nil, apperrors.NewInternalError("building request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.ErrorMessage = err.Error()
		entry.ResponseTimeMs = c.clock.Now().Sub(start).Milliseconds()
		c.recorder.RecordCall(ctx, entry)
		c.logger.Warn("eagleview request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return 0, nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	entry.ResponseTimeMs = c.clock.Now().Sub(start).Milliseconds()
	if err != nil {
		entry.ErrorMessage = err.Error()
		c.recorder.RecordCall(ctx, entry)
		return 0, nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpoint, fmt.Errorf("reading response: %w", err))
	}

	entry.Success = accepted(resp.StatusCode)
	if !entry.Success {
		entry.ErrorMessage = truncate(body)
	}
	if cost != nil {
		entry.Cost = cost(resp.StatusCode, body)
	}
	c.recorder.RecordCall(ctx, entry)

	c.logger.Debug("eagleview request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int64("responseTimeMs", entry.ResponseTimeMs),
	)

	return resp.StatusCode, body, nil
}

func accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
