package solar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
)

const (
	endpointGeocode          = "geocode"
	endpointBuildingInsights = "building_insights"
	maxErrorBody             = 512
)

type Recorder interface {
	RecordCall(ctx context.Context, entry domain.UsageEntry)
}

type Config struct {
	APIKey       string
	GeocodingURL string
	SolarURL     string
	Timeout      time.Duration
}

// Client fetches Tier-1 estimates: geocode the address, then ask the solar
// API for the closest building. Every HTTP call is recorded with its cost.
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
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		recorder:   recorder,
		clock:      clk,
		logger:     logger,
	}
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type location struct {
	formatted string
	lat       float64
	lng       float64
}

func (c *Client) FetchEstimate(ctx context.Context, address string) (*domain.Measurement, error) {
	if !c.Configured() {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointGeocode, fmt.Errorf("api key not configured"))
	}

	loc, err := c.geocode(ctx, address)
	if err != nil {
		return nil, err
	}

	insights, err := c.buildingInsights(ctx, address, loc)
	if err != nil {
		return nil, err
	}

	m := normalize(insights, c.clock.Now())
	m.FormattedAddress = loc.formatted
	m.Latitude = loc.lat
	m.Longitude = loc.lng
	return &m, nil
}

func (c *Client) geocode(ctx context.Context, address string) (*location, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.cfg.APIKey)

	status, body, err := c.get(ctx, endpointGeocode, address, domain.CostGeocode, c.cfg.GeocodingURL+"?"+q.Encode(), func(status int, body []byte) (bool, string) {
		var resp geocodeResponse
		if status != http.StatusOK || json.Unmarshal(body, &resp) != nil {
			return false, truncate(body)
		}
		return resp.Status == "OK", resp.ErrorMessage
	})
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointGeocode, fmt.Errorf("unexpected status %d", status))
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointGeocode, fmt.Errorf("decoding response: %w", err))
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("address %q could not be geocoded", address))
	default:
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointGeocode, fmt.Errorf("status %s: %s", resp.Status, resp.ErrorMessage))
	}

	if len(resp.Results) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("address %q could not be geocoded", address))
	}

	r := resp.Results[0]
	return &location{
		formatted: r.FormattedAddress,
		lat:       r.Geometry.Location.Lat,
		lng:       r.Geometry.Location.Lng,
	}, nil
}

func (c *Client) buildingInsights(ctx context.Context, address string, loc *location) (*buildingInsightsResponse, error) {
	q := url.Values{}
	q.Set("location.latitude", strconv.FormatFloat(loc.lat, 'f', -1, 64))
	q.Set("location.longitude", strconv.FormatFloat(loc.lng, 'f', -1, 64))
	q.Set("requiredQuality", "LOW")
	q.Set("key", c.cfg.APIKey)

	status, body, err := c.get(ctx, endpointBuildingInsights, address, domain.CostBuildingInsights, c.cfg.SolarURL+"?"+q.Encode(), func(status int, body []byte) (bool, string) {
		if status != http.StatusOK {
			return false, truncate(body)
		}
		return true, ""
	})
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NewNotFoundError("building not found in solar coverage")
	default:
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointBuildingInsights, fmt.Errorf("unexpected status %d", status))
	}

	var resp buildingInsightsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpointBuildingInsights, fmt.Errorf("decoding response: %w", err))
	}
	return &resp, nil
}

// get performs one billed GET and records it whatever the outcome. judge
// decides whether a completed response counts as a success.
func (c *Client) get(
	ctx context.Context,
	endpoint string,
	address string,
	cost decimal.Decimal,
	rawURL string,
	judge func(status int, body []byte) (bool, string),
) (int, []byte, error) {
	start := c.clock.Now()
	entry := domain.UsageEntry{
		Provider: domain.ProviderGoogleSolar,
		Endpoint: endpoint,
		Method:   http.MethodGet,
		Cost:     cost,
		Address:  address,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, apperrors.NewInternalError("building request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.ErrorMessage = err.Error()
		entry.ResponseTimeMs = c.clock.Now().Sub(start).Milliseconds()
		c.recorder.RecordCall(ctx, entry)
		c.logger.Warn("solar request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return 0, nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	entry.ResponseTimeMs = c.clock.Now().Sub(start).Milliseconds()
	if err != nil {
		entry.ErrorMessage = err.Error()
		c.recorder.RecordCall(ctx, entry)
		return 0, nil, apperrors.NewProviderUnavailableError(string(domain.ProviderGoogleSolar), endpoint, fmt.Errorf("reading response: %w", err))
	}

	entry.Success, entry.ErrorMessage = judge(resp.StatusCode, body)
	c.recorder.RecordCall(ctx, entry)

	c.logger.Debug("solar request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int64("responseTimeMs", entry.ResponseTimeMs),
	)

	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
