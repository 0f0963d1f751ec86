package soilgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cropsight/veg-analytics-service/internal/domain"
	"github.com/cropsight/veg-analytics-service/internal/observability"
)

// Client implements domain.SoilProvider against a SoilGrids-compatible
// REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a soil-grid lookup client. baseURL is the API root,
// e.g. https://rest.isric.org/soilgrids/v2.0.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Lookup fetches topsoil (0-5cm) properties at a coordinate.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (props domain.SoilProperties, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.SoilLookups.WithLabelValues(outcome).Inc()
	}()
	return c.lookup(ctx, lat, lon)
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (domain.SoilProperties, error) {
	params := url.Values{
		"lat":      {fmt.Sprintf("%.6f", lat)},
		"lon":      {fmt.Sprintf("%.6f", lon)},
		"property": {"soc", "phh2o", "clay"},
		"depth":    {"0-5cm"},
		"value":    {"mean"},
	}
	fullURL := c.baseURL + "/properties/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.SoilProperties{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SoilProperties{}, fmt.Errorf("soil lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.SoilProperties{}, fmt.Errorf("soil API error: status %d: %s", resp.StatusCode, body)
	}

	var sgResp response
	if err := json.NewDecoder(resp.Body).Decode(&sgResp); err != nil {
		return domain.SoilProperties{}, fmt.Errorf("decode response: %w", err)
	}

	return mapResponse(sgResp), nil
}

// mapResponse flattens the layered API shape into domain units. SoilGrids
// serves integer values scaled by a per-property d_factor: soc in dg/kg,
// phh2o in pH*10, clay in g/kg.
func mapResponse(resp response) domain.SoilProperties {
	var props domain.SoilProperties
	for _, layer := range resp.Properties.Layers {
		if len(layer.Depths) == 0 {
			continue
		}
		mean := layer.Depths[0].Values.Mean
		factor := layer.UnitMeasure.DFactor
		if factor <= 0 {
			factor = 10
		}
		switch layer.Name {
		case "soc":
			props.OrganicCarbon = mean / factor
		case "phh2o":
			props.PHWater = mean / factor
		case "clay":
			props.ClayPct = mean / factor
		}
	}
	return props
}

// SoilGrids API response types.

type response struct {
	Properties struct {
		Layers []layer `json:"layers"`
	} `json:"properties"`
}

type layer struct {
	Name        string `json:"name"`
	UnitMeasure struct {
		DFactor float64 `json:"d_factor"`
	} `json:"unit_measure"`
	Depths []depth `json:"depths"`
}

type depth struct {
	Values struct {
		Mean float64 `json:"mean"`
	} `json:"values"`
}
