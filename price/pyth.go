package price

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"algoArenaServer/config"
)

// PythClient fetches spot prices from a Pyth Hermes endpoint. It maps asset
// symbols to the configured feed IDs; the caller handles fallback on error.
type PythClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewPythClient creates a client for the given Hermes base URL (empty means
// the default public endpoint).
func NewPythClient(baseURL string) *PythClient {
	if baseURL == "" {
		baseURL = config.DefaultHermesURL
	}
	return &PythClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: config.PriceFetchTimeout},
	}
}

// hermesResponse mirrors the subset of the Hermes latest-price payload we
// read. Prices come as scaled integers with a decimal exponent.
type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// FetchPrice returns the latest spot price for a configured symbol.
func (c *PythClient) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	asset, ok := config.FindAsset(symbol)
	if !ok {
		return 0, fmt.Errorf("no price feed configured for %s", symbol)
	}

	endpoint := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", c.BaseURL, url.QueryEscape(asset.FeedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hermes returned status %d", resp.StatusCode)
	}

	var parsed hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode hermes response: %w", err)
	}
	if len(parsed.Parsed) == 0 {
		return 0, fmt.Errorf("hermes returned no price updates for %s", symbol)
	}

	raw, err := strconv.ParseFloat(parsed.Parsed[0].Price.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price value: %w", err)
	}

	// Pyth prices carry an exponent, typically -8.
	value := raw * math.Pow(10, float64(parsed.Parsed[0].Price.Expo))
	if value <= 0 {
		return 0, fmt.Errorf("non-positive price %f for %s", value, symbol)
	}
	return value, nil
}

// Healthy reports whether the Hermes endpoint answered a probe recently
// enough to be considered up. Used by the health endpoint only.
func (c *PythClient) Healthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := c.FetchPrice(probeCtx, config.Assets[0].Symbol)
	return err == nil
}
