// Package weather provides a typed pass-through client for a WeatherXM-style
// PRO weather API served behind x402 payment gating. Responses are returned
// as raw JSON; the upstream API owns the schema and this client does not
// reinterpret it.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Allowed forecast variables for hyperlocal and performance queries.
var forecastVariables = map[string]bool{
	"temperature":   true,
	"humidity":      true,
	"precipitation": true,
	"windSpeed":     true,
	"windDirection": true,
}

// ForecastVariables lists the accepted variable names.
func ForecastVariables() []string {
	return []string{"temperature", "humidity", "precipitation", "windSpeed", "windDirection"}
}

// APIError is an error response from the upstream weather API. It is
// distinct from payment-layer errors: a payment failure surfaces as an
// x402 sentinel or PaymentError from the transport, never as an APIError.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weather API error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the weather API. Give it an x402-enabled *http.Client to pay
// for gated endpoints transparently.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the X-API-KEY header sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets the underlying HTTP client, typically one wrapped with
// the x402 payment transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a weather API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StationsNear lists stations within radius meters of a coordinate.
func (c *Client) StationsNear(ctx context.Context, lat, lon, radius float64) (json.RawMessage, error) {
	return c.get(ctx, "/stations/near", url.Values{
		"lat":    {formatFloat(lat)},
		"lon":    {formatFloat(lon)},
		"radius": {formatFloat(radius)},
	})
}

// StationsBounds lists stations inside a bounding box.
func (c *Client) StationsBounds(ctx context.Context, minLat, minLon, maxLat, maxLon float64) (json.RawMessage, error) {
	return c.get(ctx, "/stations/bounds", url.Values{
		"min_lat": {formatFloat(minLat)},
		"min_lon": {formatFloat(minLon)},
		"max_lat": {formatFloat(maxLat)},
		"max_lon": {formatFloat(maxLon)},
	})
}

// Stations lists all available stations.
func (c *Client) Stations(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/stations", nil)
}

// LatestObservation returns the most recent observation from a station.
func (c *Client) LatestObservation(ctx context.Context, stationID string) (json.RawMessage, error) {
	return c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/latest", nil)
}

// HistoricalObservations returns a station's observations for a date
// (YYYY-MM-DD).
func (c *Client) HistoricalObservations(ctx context.Context, stationID, date string) (json.RawMessage, error) {
	return c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/history", url.Values{
		"date": {date},
	})
}

// SearchCells searches H3 cells by region name.
func (c *Client) SearchCells(ctx context.Context, query string) (json.RawMessage, error) {
	return c.get(ctx, "/cells/search", url.Values{
		"query": {query},
	})
}

// StationsInCell lists the stations in an H3 cell.
func (c *Client) StationsInCell(ctx context.Context, cellIndex string) (json.RawMessage, error) {
	return c.get(ctx, "/cells/"+url.PathEscape(cellIndex)+"/stations", nil)
}

// ForecastForCell returns daily or hourly forecasts for an H3 cell over a
// date range (YYYY-MM-DD, inclusive).
func (c *Client) ForecastForCell(ctx context.Context, cellIndex, from, to, include string) (json.RawMessage, error) {
	if include != "daily" && include != "hourly" {
		return nil, fmt.Errorf("include must be %q or %q, got %q", "daily", "hourly", include)
	}
	return c.get(ctx, "/cells/"+url.PathEscape(cellIndex)+"/forecast/wxmv1", url.Values{
		"from":    {from},
		"to":      {to},
		"include": {include},
	})
}

// HyperlocalForecast returns a station-level forecast for one variable.
// Timezone is optional; empty means the station's local timezone.
func (c *Client) HyperlocalForecast(ctx context.Context, stationID, variable, timezone string) (json.RawMessage, error) {
	if !forecastVariables[variable] {
		return nil, fmt.Errorf("invalid variable %q", variable)
	}
	params := url.Values{"variable": {variable}}
	if timezone != "" {
		params.Set("timezone", timezone)
	}
	return c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/hyperlocal", params)
}

// FactPerformance returns forecast-accuracy metrics for a station variable.
func (c *Client) FactPerformance(ctx context.Context, stationID, variable string) (json.RawMessage, error) {
	if !forecastVariables[variable] {
		return nil, fmt.Errorf("invalid variable %q", variable)
	}
	return c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/fact/performance", url.Values{
		"variable": {variable},
	})
}

// FactRanking returns a station's forecast-accuracy ranking.
func (c *Client) FactRanking(ctx context.Context, stationID string) (json.RawMessage, error) {
	return c.get(ctx, "/stations/"+url.PathEscape(stationID)+"/fact/ranking", nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Payment and transport errors from the x402 layer pass through.
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(body),
		}
	}

	return json.RawMessage(body), nil
}

// upstreamMessage extracts the API's message field if the error body is JSON,
// falling back to the raw body.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
