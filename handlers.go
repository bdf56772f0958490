package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/cache"
	"github.com/Tutortoise/captcha-solver-service/captcha"
	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/models"
)

const (
	routePrefix   = "/text-select.captcha"
	maxUploadSize = 10 << 20
)

// Solver matches the targets of one captcha image.
type Solver interface {
	Solve(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// ImageCache keeps annotated results for later download.
type ImageCache interface {
	Save(ctx context.Context, img image.Image) (cache.Entry, error)
	Path(name string) (string, error)
}

// StatsSource reports the counters of one model session.
type StatsSource interface {
	Stats() engine.GuardStats
}

type AppState struct {
	Solver Solver
	Cache  ImageCache
	Models []StatsSource
	Static http.Handler
	Logger *zap.SugaredLogger
}

type ReasonResponse struct {
	URL        string             `json:"url"`
	Detections []models.Detection `json:"detections"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *AppState) routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(routePrefix).Subrouter()
	api.HandleFunc("/reason", s.handleReason).Methods(http.MethodPost)
	api.HandleFunc("/cache", s.handleCache).Methods(http.MethodGet)
	s.addMonitoringRoutes(r)
	if s.Static != nil {
		r.PathPrefix("/").Handler(s.Static).Methods(http.MethodGet)
	}
	return cors.Default().Handler(r)
}

func (s *AppState) handleReason(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: uuid.NewString()}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		sendErrorResponse(w, CodeInvalidRequest, MsgMissingImage, err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		sendErrorResponse(w, CodeInvalidRequest, MsgMissingImage, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	decodeStart := time.Now()
	img, err := decodeImage(file)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		sendErrorResponse(w, CodeInvalidImage, MsgInvalidImage, err.Error(), http.StatusBadRequest)
		return
	}

	solveStart := time.Now()
	dets, err := s.Solver.Solve(r.Context(), img)
	timings.Solve = time.Since(solveStart)
	if err != nil {
		s.Logger.Warnw("solve failed", "requestID", timings.RequestID, "error", err)
		sendSolveError(w, err)
		return
	}

	annotateStart := time.Now()
	annotated := captcha.Annotate(img, dets)
	timings.Annotate = time.Since(annotateStart)

	cacheStart := time.Now()
	entry, err := s.Cache.Save(r.Context(), annotated)
	timings.Cache = time.Since(cacheStart)
	if err != nil {
		s.Logger.Errorw("caching result failed", "requestID", timings.RequestID, "error", err)
		sendErrorResponse(w, CodeCacheError, MsgCache, "", http.StatusInternalServerError)
		return
	}

	timings.Total = time.Since(startTotal)
	logTimings(s.Logger, timings)

	if dets == nil {
		dets = []models.Detection{}
	}
	writeJSON(w, http.StatusOK, ReasonResponse{URL: cacheURL(r, entry.FileName), Detections: dets})
}

func (s *AppState) handleCache(w http.ResponseWriter, r *http.Request) {
	path, err := s.Cache.Path(r.URL.Query().Get("file"))
	switch {
	case errors.Is(err, cache.ErrInvalidName):
		sendErrorResponse(w, CodeInvalidFileName, MsgInvalidFileName, "", http.StatusBadRequest)
		return
	case err != nil:
		sendErrorResponse(w, CodeCacheEntryNotFound, MsgNotFound, "", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	sessions := make([]engine.GuardStats, 0, len(s.Models))
	for _, m := range s.Models {
		sessions = append(sessions, m.Stats())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":   sessions,
		"goroutines": runtime.NumGoroutine(),
	})
}

func decodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, captcha.ErrEmptyImage
	}
	return img, nil
}

// cacheURL is the absolute address the cached file is served from.
func cacheURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     routePrefix + "/cache",
		RawQuery: url.Values{"file": {name}}.Encode(),
	}
	return u.String()
}

func sendSolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, captcha.ErrEmptyImage):
		sendErrorResponse(w, CodeInvalidImage, MsgInvalidImage, err.Error(), http.StatusBadRequest)
	case errors.Is(err, captcha.ErrStructuralMismatch):
		sendErrorResponse(w, CodeLayoutMismatch, MsgLayoutMismatch, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, detections.ErrUnloadedModel):
		sendErrorResponse(w, CodeModelUnavailable, MsgModelUnavailable, "", http.StatusServiceUnavailable)
	default:
		sendErrorResponse(w, CodeProcessingError, MsgProcessing, err.Error(), http.StatusInternalServerError)
	}
}

func logTimings(logger *zap.SugaredLogger, t *models.ProcessingTimings) {
	logger.Debugw("processing times",
		"requestID", t.RequestID,
		"imageDecode", t.ImageDecode,
		"solve", t.Solve,
		"annotate", t.Annotate,
		"cache", t.Cache,
		"total", t.Total,
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message, details string, status int) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
