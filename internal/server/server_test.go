package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/tilewms/internal/api"
	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/internal/raster/rastertest"
	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// Test server setup
func setupTestServer(t *testing.T, renderer TileRenderer) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	apiServer := NewServer(renderer, Options{
		Version:    "2.0.0-test",
		MaxRenders: 2,
		Timeout:    30 * time.Second,
		Logger:     logger,
	})
	server := httptest.NewServer(NewRouter(apiServer, 30*time.Second))
	t.Cleanup(server.Close)
	return server
}

// fixtureRenderer renders from an 8x8 RGB raster covering (0,0)-(8,8):
// the top half is black, the bottom half is (10, 20, 30).
func fixtureRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	path := rastertest.Write(t, t.TempDir(), "wms.tif", rastertest.Image{
		Width:  8,
		Height: 8,
		Bands:  3,
		Pixel: func(band, _, row int) float64 {
			if row < 4 {
				return 0
			}
			return float64((band + 1) * 10)
		},
		TileSize:  16,
		Origin:    [2]float64{0, 8},
		PixelSize: [2]float64{1, 1},
		NoData:    "255",
	})
	logger, _ := test.NewNullLogger()
	return render.New(path, render.DefaultOptions(), logger)
}

// stubRenderer returns a fixed error or result.
type stubRenderer struct {
	err    error
	result *render.Result
	delay  time.Duration

	active, peak atomic.Int32
}

func (s *stubRenderer) Render(ctx context.Context, _ tile.Request) (*render.Result, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubRenderer) Info(context.Context) (raster.Info, error) {
	return raster.Info{}, s.err
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t, &stubRenderer{})

	resp := get(t, server.URL+"/health")

	// Check status code
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	// Check content type
	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	// Parse response
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.Status != api.Healthy {
		t.Errorf("Expected status 'healthy', got %s", health.Status)
	}
	if health.Version == nil || *health.Version != "2.0.0-test" {
		t.Errorf("Expected version '2.0.0-test', got %v", health.Version)
	}
	if health.Uptime == nil {
		t.Error("Expected uptime to be set")
	}
}

func TestGetMapPNG(t *testing.T) {
	server := setupTestServer(t, fixtureRenderer(t))

	resp := get(t, server.URL+"/wms?bbox=0,0,8,8&width=8&height=8&transparent=90&format=png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(len(body)), resp.Header.Get("Content-Length"))

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, color.NRGBA{0, 0, 0, 26}, color.NRGBAModel.Convert(img.At(0, 0)))
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, color.NRGBAModel.Convert(img.At(0, 7)))
}

func TestGetMapDefaultsAndJPEG(t *testing.T) {
	server := setupTestServer(t, fixtureRenderer(t))

	resp := get(t, server.URL+"/wms?bbox=0,0,8,8&format=jpeg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, body[:2])
}

func TestGetMapUpperCaseWMSParameters(t *testing.T) {
	server := setupTestServer(t, fixtureRenderer(t))

	resp := get(t, server.URL+"/wms?SERVICE=WMS&REQUEST=GetMap&VERSION=1.3.0&LAYERS=ortho&STYLES=&CRS=EPSG:2056&BBOX=0,0,8,8&WIDTH=4&HEIGHT=4&FORMAT=image/png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestGetMapValidation(t *testing.T) {
	renderer := &stubRenderer{}
	server := setupTestServer(t, renderer)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"missing bbox", "width=10", "bbox"},
		{"three values", "bbox=1,2,3", "bbox"},
		{"not a number", "bbox=a,b,c,d", "bbox"},
		{"width not an integer", "bbox=0,0,1,1&width=wide", "width"},
		{"zero width", "bbox=0,0,1,1&width=0", "request"},
		{"negative height", "bbox=0,0,1,1&height=-5", "request"},
		{"transparency too high", "bbox=0,0,1,1&transparent=101", "request"},
		{"transparency negative", "bbox=0,0,1,1&transparent=-1", "request"},
		{"unknown format", "bbox=0,0,1,1&format=gif", "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, server.URL+"/wms?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body api.ValidationErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, api.VALIDATIONERROR, body.Error)
			assert.NotEmpty(t, body.Message)
			require.Len(t, body.ValidationErrors, 1)
			assert.Equal(t, tt.field, body.ValidationErrors[0].Field)
			assert.NotNil(t, body.RequestId)
		})
	}

	// Malformed requests never reach the renderer.
	assert.Equal(t, int32(0), renderer.peak.Load())
}

func TestGetMapErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   api.ErrorResponseError
	}{
		{"raster access", fmt.Errorf("%w: open: no such file", tile.ErrRasterAccess), http.StatusInternalServerError, api.RASTERACCESSERROR},
		{"invalid window", fmt.Errorf("%w: outside", tile.ErrInvalidWindow), http.StatusInternalServerError, api.INVALIDWINDOW},
		{"band layout", fmt.Errorf("%w: 0 bands", tile.ErrUnsupportedBandLayout), http.StatusInternalServerError, api.UNSUPPORTEDBANDLAYOUT},
		{"encoding", fmt.Errorf("%w: png", tile.ErrEncoding), http.StatusInternalServerError, api.ENCODINGERROR},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, api.INTERNALERROR},
		{"deadline", fmt.Errorf("reading: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, api.RENDERTIMEOUT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, &stubRenderer{err: tt.err})

			resp := get(t, server.URL+"/wms?bbox=0,0,1,1")
			assert.Equal(t, tt.status, resp.StatusCode)

			var body api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.NotNil(t, body.RequestId)
		})
	}
}

func TestGetMapOutsideRaster(t *testing.T) {
	server := setupTestServer(t, fixtureRenderer(t))

	resp := get(t, server.URL+"/wms?bbox=100,100,200,200")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, api.INVALIDWINDOW, body.Error)
}

func TestGetMapLimitsConcurrentRenders(t *testing.T) {
	renderer := &stubRenderer{
		delay:  50 * time.Millisecond,
		result: &render.Result{Data: []byte("tile"), ContentType: "image/png"},
	}
	server := setupTestServer(t, renderer)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(server.URL + "/wms?bbox=0,0,1,1")
			if err != nil {
				t.Errorf("request failed: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("Expected status 200, got %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, renderer.peak.Load(), int32(2))
}

func TestInfoEndpoint(t *testing.T) {
	server := setupTestServer(t, fixtureRenderer(t))

	resp := get(t, server.URL+"/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info api.RasterInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 3, info.Bands)
	assert.Equal(t, "uint8", info.DataType)
	assert.Equal(t, []float64{0, 0, 8, 8}, info.Bounds)
	require.NotNil(t, info.Nodata)
	assert.Equal(t, "255", *info.Nodata)
	assert.Empty(t, info.Overviews)
}

func TestInfoEndpointRasterMissing(t *testing.T) {
	server := setupTestServer(t, &stubRenderer{err: fmt.Errorf("%w: gone", tile.ErrRasterAccess)})

	resp := get(t, server.URL+"/info")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	server := setupTestServer(t, &stubRenderer{})

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/wms", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestRequestLoggerFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	apiServer := NewServer(&stubRenderer{}, Options{Logger: logger})
	handler := NewRouter(apiServer, time.Second)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/health", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
