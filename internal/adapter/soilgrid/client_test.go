package soilgrid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/veg-analytics-service/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func soilResponse() response {
	var resp response
	resp.Properties.Layers = []layer{
		soilLayer("soc", 10, 253),
		soilLayer("phh2o", 10, 66),
		soilLayer("clay", 10, 218),
	}
	return resp
}

func soilLayer(name string, dFactor, mean float64) layer {
	var l layer
	l.Name = name
	l.UnitMeasure.DFactor = dFactor
	l.Depths = []depth{{}}
	l.Depths[0].Values.Mean = mean
	return l
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/properties/query", r.URL.Path)
		assert.Equal(t, "40.712800", r.URL.Query().Get("lat"))
		assert.Equal(t, "-95.005000", r.URL.Query().Get("lon"))
		assert.ElementsMatch(t, []string{"soc", "phh2o", "clay"}, r.URL.Query()["property"])
		assert.Equal(t, "0-5cm", r.URL.Query().Get("depth"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(soilResponse()))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	props, err := c.Lookup(context.Background(), 40.7128, -95.005)
	require.NoError(t, err)

	assert.InDelta(t, 25.3, props.OrganicCarbon, 1e-9)
	assert.InDelta(t, 6.6, props.PHWater, 1e-9)
	assert.InDelta(t, 21.8, props.ClayPct, 1e-9)
}

func TestClient_Lookup_MissingDFactorDefaultsToTen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var resp response
		resp.Properties.Layers = []layer{soilLayer("soc", 0, 150)}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	props, err := c.Lookup(context.Background(), 40.0, -95.0)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, props.OrganicCarbon, 1e-9)
}

func TestClient_Lookup_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"rate limited"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Lookup(context.Background(), 40.0, -95.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_Lookup_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Lookup(context.Background(), 40.0, -95.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Lookup_EmptyLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	props, err := c.Lookup(context.Background(), 40.0, -95.0)
	require.NoError(t, err)
	assert.Zero(t, props.OrganicCarbon)
	assert.Zero(t, props.PHWater)
	assert.Zero(t, props.ClayPct)
}
