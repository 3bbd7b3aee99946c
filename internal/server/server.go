package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/kiesman99/tilewms/internal/api"
	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// TileRenderer produces encoded tiles and raster metadata.
type TileRenderer interface {
	Render(ctx context.Context, req tile.Request) (*render.Result, error)
	Info(ctx context.Context) (raster.Info, error)
}

// Options configures a Server.
type Options struct {
	Version string
	// MaxRenders bounds concurrent renders; values below 1 mean 1.
	MaxRenders int64
	// Timeout is reported in RENDER_TIMEOUT responses.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	renderer  TileRenderer
	renders   *semaphore.Weighted
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewServer creates a new server instance
func NewServer(renderer TileRenderer, opts Options) *Server {
	if opts.MaxRenders < 1 {
		opts.MaxRenders = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Server{
		startTime: time.Now(),
		version:   opts.Version,
		renderer:  renderer,
		renders:   semaphore.NewWeighted(opts.MaxRenders),
		timeout:   opts.Timeout,
		log:       opts.Logger,
	}
}

var _ api.ServerInterface = (*Server)(nil)

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// GetInfo returns the metadata of the configured raster.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	requestID := requestID(r)

	info, err := s.renderer.Info(r.Context())
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Error("reading raster info failed")
		s.handleRenderError(w, err, &requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, toRasterInfo(info))
}

// GetMap renders one tile.
func (s *Server) GetMap(w http.ResponseWriter, r *http.Request, params api.GetMapParams) {
	requestID := requestID(r)

	req, field, err := requestFromParams(params)
	if err != nil {
		s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"request_id":   requestID,
		"bbox":         params.Bbox,
		"width":        req.Width,
		"height":       req.Height,
		"transparency": req.Transparency,
		"format":       req.Format.String(),
	})
	log.Info("received WMS request")

	if err := s.renders.Acquire(r.Context(), 1); err != nil {
		log.WithError(err).Warn("gave up waiting for a render slot")
		s.handleRenderError(w, err, &requestID)
		return
	}
	defer s.renders.Release(1)

	result, err := s.renderer.Render(r.Context(), req)
	if err != nil {
		log.WithError(err).Error("error processing WMS request")
		s.handleRenderError(w, err, &requestID)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		log.WithError(err).Warn("writing response failed")
	}
}

// requestFromParams applies defaults and parses the bbox and format. The
// returned field names the offending parameter on error.
func requestFromParams(params api.GetMapParams) (tile.Request, string, error) {
	req := tile.Request{
		Width:  tile.DefaultWidth,
		Height: tile.DefaultHeight,
	}

	bbox, err := tile.ParseBoundingBox(params.Bbox)
	if err != nil {
		return req, "bbox", err
	}
	req.BBox = bbox

	if params.Width != nil {
		req.Width = *params.Width
	}
	if params.Height != nil {
		req.Height = *params.Height
	}
	if params.Transparent != nil {
		req.Transparency = *params.Transparent
	}
	if params.Format != nil {
		if req.Format, err = tile.ParseFormat(*params.Format); err != nil {
			return req, "format", err
		}
	}

	if err := req.Validate(0, 0); err != nil {
		return req, "request", err
	}
	return req, "", nil
}

// handleRenderError maps pipeline errors to HTTP responses.
func (s *Server) handleRenderError(w http.ResponseWriter, err error, requestID *string) {
	switch {
	case errors.Is(err, tile.ErrInvalidRequest), errors.Is(err, tile.ErrMalformedBoundingBox):
		s.writeValidationErrorResponse(w, "request", err.Error(), requestID)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.RENDERTIMEOUT,
			"Tile rendering timed out", requestID, map[string]interface{}{
				"timeout_seconds": int(s.timeout.Seconds()),
			})
	case errors.Is(err, tile.ErrRasterAccess):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.RASTERACCESSERROR, err.Error(), requestID, nil)
	case errors.Is(err, tile.ErrInvalidWindow):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INVALIDWINDOW, err.Error(), requestID, nil)
	case errors.Is(err, tile.ErrUnsupportedBandLayout):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.UNSUPPORTEDBANDLAYOUT, err.Error(), requestID, nil)
	case errors.Is(err, tile.ErrEncoding):
		s.writeErrorResponse(w, http.StatusInternalServerError, api.ENCODINGERROR, err.Error(), requestID, nil)
	default:
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

// handleParamError reports query binding failures from the generated wrapper.
func (s *Server) handleParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestID(r)
	field := "request"

	var required *api.RequiredParamError
	var invalid *api.InvalidParamFormatError
	switch {
	case errors.As(err, &required):
		field = required.ParamName
	case errors.As(err, &invalid):
		field = invalid.ParamName
	}
	s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode api.ErrorResponseError, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			{
				Field:   field,
				Message: message,
			},
		},
	}
	s.writeJSON(w, http.StatusBadRequest, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("encoding JSON response failed")
	}
}

func toRasterInfo(info raster.Info) api.RasterInfo {
	out := api.RasterInfo{
		Path:          info.Path,
		Width:         info.Width,
		Height:        info.Height,
		Bands:         info.Bands,
		DataType:      info.DataType,
		Bounds:        info.Bounds[:],
		Georeferenced: info.Georeferenced,
	}
	pixelSize := info.PixelSize[:]
	out.PixelSize = &pixelSize
	if info.EPSG != 0 {
		out.Epsg = &info.EPSG
	}
	if info.NoData != "" {
		out.Nodata = &info.NoData
	}
	out.Overviews = make([]struct {
		Height int `json:"height"`
		Width  int `json:"width"`
	}, len(info.Overviews))
	for i, ov := range info.Overviews {
		out.Overviews[i].Width = ov.Width
		out.Overviews[i].Height = ov.Height
	}
	return out
}

// requestID returns the id assigned by the RequestID middleware, or a fresh
// one when the handler runs without it.
func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}
