// Command weather-mcp runs an MCP server over stdio exposing WeatherXM PRO
// API tools. Calls to payment-gated endpoints are paid automatically with
// x402 using the wallet configured via X402_PRIVATE_KEY.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	x402http "github.com/skapa-xyz/pl-genesis-hackathon-demo/http"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/signers/evm"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/weather"
)

const serverVersion = "0.6.0"

func main() {
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	privateKey := os.Getenv("X402_PRIVATE_KEY")
	if privateKey == "" {
		return errors.New("X402_PRIVATE_KEY environment variable is required")
	}

	network := os.Getenv("X402_NETWORK")
	if network == "" {
		network = "filecoin-calibration"
	}
	chain, err := x402.ChainByNetwork(network)
	if err != nil {
		return err
	}

	baseURL := os.Getenv("WEATHER_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8081/api/v1"
	}

	signer, err := evm.NewSigner(
		evm.WithPrivateKey(privateKey),
		evm.WithChain(chain),
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	paymentClient, err := x402http.NewClient(
		x402http.WithSigner(signer),
		x402http.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment client: %w", err)
	}

	opts := []weather.ClientOption{weather.WithHTTPClient(paymentClient.Client)}
	apiKey := os.Getenv("WEATHERXMPRO_API_KEY")
	if apiKey != "" {
		opts = append(opts, weather.WithAPIKey(apiKey))
	}
	api := weather.NewClient(baseURL, opts...)

	srv := mcpserver.NewMCPServer("weatherxm-pro-mcp-server", serverVersion)
	registerTools(srv, api, logger)

	logger.Info("starting weather MCP server",
		"version", serverVersion,
		"baseURL", baseURL,
		"network", network,
		"wallet", signer.Address().Hex(),
		"apiKeyProvided", apiKey != "")

	return mcpserver.ServeStdio(srv)
}

func registerTools(srv *mcpserver.MCPServer, api *weather.Client, logger *slog.Logger) {
	srv.AddTool(mcp.NewTool(
		"get_stations_near",
		mcp.WithDescription("Get weather stations near a location"),
		mcp.WithNumber("lat", mcp.Required(), mcp.Description("Latitude of the location")),
		mcp.WithNumber("lon", mcp.Required(), mcp.Description("Longitude of the location")),
		mcp.WithNumber("radius", mcp.Required(), mcp.Description("Radius in meters")),
	), handle(logger, "get_stations_near", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.StationsNear(ctx, floatArg(args, "lat"), floatArg(args, "lon"), floatArg(args, "radius"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_stations_bounds",
		mcp.WithDescription("Get weather stations within a bounding box"),
		mcp.WithNumber("min_lat", mcp.Required(), mcp.Description("Minimum latitude")),
		mcp.WithNumber("min_lon", mcp.Required(), mcp.Description("Minimum longitude")),
		mcp.WithNumber("max_lat", mcp.Required(), mcp.Description("Maximum latitude")),
		mcp.WithNumber("max_lon", mcp.Required(), mcp.Description("Maximum longitude")),
	), handle(logger, "get_stations_bounds", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.StationsBounds(ctx,
			floatArg(args, "min_lat"), floatArg(args, "min_lon"),
			floatArg(args, "max_lat"), floatArg(args, "max_lon"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_all_stations",
		mcp.WithDescription("Get all available weather stations"),
	), handle(logger, "get_all_stations", func(ctx context.Context, _ map[string]interface{}) (json.RawMessage, error) {
		return api.Stations(ctx)
	}))

	srv.AddTool(mcp.NewTool(
		"get_latest_observation",
		mcp.WithDescription("Get the latest observation from a station"),
		mcp.WithString("station_id", mcp.Required(), mcp.Description("The unique identifier of the station")),
	), handle(logger, "get_latest_observation", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.LatestObservation(ctx, stringArg(args, "station_id"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_historical_observations",
		mcp.WithDescription("Get historical observations from a station for a date"),
		mcp.WithString("station_id", mcp.Required(), mcp.Description("The unique identifier of the station")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date (YYYY-MM-DD) for historical observations")),
	), handle(logger, "get_historical_observations", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.HistoricalObservations(ctx, stringArg(args, "station_id"), stringArg(args, "date"))
	}))

	srv.AddTool(mcp.NewTool(
		"search_cells_in_region",
		mcp.WithDescription("Search H3 cells by region name"),
		mcp.WithString("region_query", mcp.Required(), mcp.Description("The name of the region to search for cells")),
	), handle(logger, "search_cells_in_region", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.SearchCells(ctx, stringArg(args, "region_query"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_stations_in_cell",
		mcp.WithDescription("Get the stations in an H3 cell"),
		mcp.WithString("cell_index", mcp.Required(), mcp.Description("The H3 index of the cell")),
	), handle(logger, "get_stations_in_cell", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.StationsInCell(ctx, stringArg(args, "cell_index"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_forecast_for_cell",
		mcp.WithDescription("Get daily or hourly forecast for an H3 cell"),
		mcp.WithString("forecast_cell_index", mcp.Required(), mcp.Description("The H3 index of the cell")),
		mcp.WithString("forecast_from", mcp.Required(), mcp.Description("First day of forecast data (YYYY-MM-DD)")),
		mcp.WithString("forecast_to", mcp.Required(), mcp.Description("Last day of forecast data (YYYY-MM-DD)")),
		mcp.WithString("forecast_include", mcp.Required(), mcp.Description("Forecast granularity: daily or hourly")),
	), handle(logger, "get_forecast_for_cell", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.ForecastForCell(ctx,
			stringArg(args, "forecast_cell_index"),
			stringArg(args, "forecast_from"),
			stringArg(args, "forecast_to"),
			stringArg(args, "forecast_include"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_hyperlocal_forecast",
		mcp.WithDescription("Get a station-level forecast for one weather variable"),
		mcp.WithString("station_id", mcp.Required(), mcp.Description("The station to get the forecast for")),
		mcp.WithString("variable", mcp.Required(), mcp.Description("Weather variable: temperature, humidity, precipitation, windSpeed, or windDirection")),
		mcp.WithString("timezone", mcp.Description("Timezone for the forecast; defaults to station location timezone")),
	), handle(logger, "get_hyperlocal_forecast", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.HyperlocalForecast(ctx, stringArg(args, "station_id"), stringArg(args, "variable"), stringArg(args, "timezone"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_fact_performance",
		mcp.WithDescription("Get forecast accuracy metrics for a station variable"),
		mcp.WithString("station_id", mcp.Required(), mcp.Description("The station to get the forecast performance for")),
		mcp.WithString("variable", mcp.Required(), mcp.Description("Weather variable: temperature, humidity, precipitation, windSpeed, or windDirection")),
	), handle(logger, "get_fact_performance", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.FactPerformance(ctx, stringArg(args, "station_id"), stringArg(args, "variable"))
	}))

	srv.AddTool(mcp.NewTool(
		"get_fact_ranking",
		mcp.WithDescription("Get the forecast accuracy ranking for a station"),
		mcp.WithString("station_id", mcp.Required(), mcp.Description("The station to get the forecast ranking for")),
	), handle(logger, "get_fact_ranking", func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error) {
		return api.FactRanking(ctx, stringArg(args, "station_id"))
	}))
}

// handle wraps a weather API call as an MCP tool handler. Upstream API
// errors and payment errors come back as labeled tool errors, never as
// protocol failures.
func handle(logger *slog.Logger, name string, fn func(ctx context.Context, args map[string]interface{}) (json.RawMessage, error)) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		logger.Info("MCP tool invoked", "tool", name, "parameters", args)

		result, err := fn(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}

		return mcp.NewToolResultText(string(result)), nil
	}
}

// describeError labels an error so callers can tell an upstream API failure
// from a payment failure.
func describeError(err error) string {
	var apiErr *weather.APIError
	if errors.As(err, &apiErr) {
		return "WeatherXM API error: " + apiErr.Message
	}

	var paymentErr *x402.PaymentError
	if errors.As(err, &paymentErr) {
		return "Payment error: " + paymentErr.Message
	}
	if errors.Is(err, x402.ErrPaymentRequired) || errors.Is(err, x402.ErrNoValidSigner) {
		return "Payment error: " + err.Error()
	}

	return "Request error: " + err.Error()
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func floatArg(args map[string]interface{}, key string) float64 {
	f, _ := args[key].(float64)
	return f
}
