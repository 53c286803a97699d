// Package api exposes flood mapping over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/forest-guardian/flood-mapper/output"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Mapper runs one flood mapping request.
type Mapper interface {
	Run(ctx context.Context, req delivery.Request) (*delivery.Result, error)
}

type Server struct {
	httpServer *http.Server
	mapper     Mapper
	staticDir  string
	clock      clockwork.Clock
	logger     *zap.Logger
}

// CheckFloodRequest is the body of POST /check_flood. TimeRange accepts the
// same expressions as the CLI --datetime flag.
type CheckFloodRequest struct {
	BBox      []float64 `json:"bbox"`
	TimeRange string    `json:"time_range"`
	Mode      string    `json:"mode"`
}

type CheckFloodResponse struct {
	RequestID string                     `json:"request_id"`
	Mode      string                     `json:"mode"`
	Time      time.Time                  `json:"time"`
	ImageURL  string                     `json:"image_url,omitempty"`
	Summaries []flood.StepSummary        `json:"summaries"`
	Flooded   *geojson.FeatureCollection `json:"flooded"`
}

// NewServer creates the HTTP server. Maps rendered for requests are written to
// staticDir and served below /static/.
func NewServer(addr string, mapper Mapper, staticDir string, clock clockwork.Clock, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		mapper:    mapper,
		staticDir: staticDir,
		clock:     clock,
		logger:    logger,
	}

	router.HandleFunc("/check_flood", s.handleCheckFlood).Methods(http.MethodPost)
	router.HandleFunc("/static/{name}", s.handleStatic).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCheckFlood(w http.ResponseWriter, r *http.Request) {
	var body CheckFloodRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.BBox) != 4 {
		writeError(w, http.StatusBadRequest, "Invalid bounding box")
		return
	}
	if body.TimeRange == "" {
		writeError(w, http.StatusBadRequest, "Invalid time range")
		return
	}
	bbox, err := catalog.ParseBBox(body.BBox)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := catalog.ParseDatetime(body.TimeRange, s.clock)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.mapper.Run(r.Context(), delivery.Request{BBox: bbox, Datetime: interval, Mode: body.Mode})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	last := res.Cube.Steps() - 1
	if last < 0 {
		writeError(w, http.StatusNotFound, delivery.ErrNoAcquisitions.Error())
		return
	}
	flooded, err := output.PixelFeatures(res.Cube, res.Variable, last, res.Threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := CheckFloodResponse{
		RequestID: res.RequestID,
		Mode:      res.Mode,
		Summaries: res.Summaries,
		Flooded:   flooded,
	}
	if last < len(res.Cube.Time) {
		resp.Time = res.Cube.Time[last]
	}
	if s.staticDir != "" {
		path, err := output.WritePNG(filepath.Join(s.staticDir, res.RequestID), res.Cube, res.Variable, last, res.Threshold, 1)
		if err != nil {
			s.logger.Warn("failed to render flood map", zap.String("request_id", res.RequestID), zap.Error(err))
		} else {
			resp.ImageURL = "/static/" + filepath.Base(path)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.staticDir == "" || name != filepath.Base(name) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.staticDir, name))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidBBox),
		errors.Is(err, catalog.ErrInvalidDatetime),
		errors.Is(err, delivery.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, delivery.ErrNoAcquisitions):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
