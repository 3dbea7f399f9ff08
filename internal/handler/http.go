package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/metrics"
	"github.com/yakkun/terrain-grid-gen/internal/terrain"
)

const (
	maxBatchPoints = 1000
	// minSpacing keeps a single request from asking for an unbounded
	// number of blocks. maxSpacing bounds the width of one block row.
	minSpacing = 30
	maxSpacing = 5000
)

type Handler struct {
	service    *terrain.Service
	metrics    *metrics.Metrics
	logger     *zap.Logger
	retryAfter time.Duration
}

// NewHandler serves the service over HTTP. m may be nil.
func NewHandler(service *terrain.Service, m *metrics.Metrics, logger *zap.Logger, retryAfter time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	return &Handler{service: service, metrics: m, logger: logger, retryAfter: retryAfter}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, h.countRequests)

	r.Get("/tiles/{name}", h.handleTile)
	r.Get("/elevation", h.handleElevation)
	r.Post("/elevation/batch", h.handleBatchElevation)
	r.Get("/map", h.handleMap)
	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	return r
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(route, status)
	})
}

type tileStatus struct {
	Tile    string   `json:"tile"`
	State   string   `json:"state"`
	Pending []string `json:"pending,omitempty"`
	Blocks  int      `json:"blocks,omitempty"`
}

func (h *Handler) handleTile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	name := chi.URLParam(r, "name")
	lat, lon, err := dat.ParseFileName(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := terrain.Request{LatDegrees: lat, LonDegrees: lon}
	if req.Spacing, err = spacingParam(r); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid spacing parameter")
		return
	}
	if f := r.URL.Query().Get("format"); f != "" {
		if req.Profile, err = geo.ParseProfile(f); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var res *dat.Result
	if r.URL.Query().Get("wait") != "" {
		res, err = h.service.Wait(r.Context(), req)
	} else {
		res, err = h.service.Generate(r.Context(), req)
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	status := tileStatus{Tile: res.Name, State: res.State.String(), Blocks: res.Blocks}
	switch res.State {
	case dat.StateReady:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+res.Name+`"`)
		http.ServeFile(w, r, filepath.Clean(res.Path))
	case dat.StatePending:
		for _, id := range res.Pending {
			status.Pending = append(status.Pending, id.Name())
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(h.retryAfter.Seconds()))))
		writeJSON(w, http.StatusAccepted, status)
	case dat.StateNotCovered:
		writeJSON(w, http.StatusNotFound, status)
	}

	h.logger.Info("tile request",
		zap.String("tile", res.Name),
		zap.String("state", res.State.String()),
		zap.Int("pending", len(res.Pending)),
		zap.Duration("duration", time.Since(start)))
}

func (h *Handler) handleElevation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		writeError(w, http.StatusBadRequest, "Missing lat or lon parameter")
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lat parameter")
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lon parameter")
		return
	}

	res, err := h.service.GetElevation(r.Context(), lat, lon)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)

	h.logger.Debug("elevation request",
		zap.Float64("lat", lat), zap.Float64("lon", lon),
		zap.Int16("elevation", res.Elevation), zap.String("status", res.Status),
		zap.Duration("duration", time.Since(start)))
}

func (h *Handler) handleBatchElevation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Points []terrain.BatchPoint `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(request.Points) == 0 {
		writeError(w, http.StatusBadRequest, "No points provided")
		return
	}
	if len(request.Points) > maxBatchPoints {
		writeError(w, http.StatusBadRequest, "Too many points (max 1000)")
		return
	}

	results, err := h.service.GetBatchElevations(r.Context(), request.Points)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Results []terrain.ElevationResult `json:"results"`
	}{Results: results})
}

func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	lat, err := intParam(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lat parameter")
		return
	}
	lon, err := intParam(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lon parameter")
		return
	}
	spacing, err := spacingParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid spacing parameter")
		return
	}
	var p geo.Profile
	if f := r.URL.Query().Get("format"); f != "" {
		if p, err = geo.ParseProfile(f); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rep, err := h.service.MapDegree(lat, lon, spacing, p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetHealth())
}

// fail maps domain errors to 400 and everything else to 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, geo.ErrMathDomain) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// intParam reads an optional integer query parameter; absent is 0.
func intParam(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// spacingParam reads the optional grid spacing; absent is 0, the service
// default.
func spacingParam(r *http.Request) (int, error) {
	spacing, err := intParam(r, "spacing")
	if err != nil {
		return 0, err
	}
	if spacing != 0 && (spacing < minSpacing || spacing > maxSpacing) {
		return 0, errors.Newf("spacing %d outside [%d, %d]", spacing, minSpacing, maxSpacing)
	}
	return spacing, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
