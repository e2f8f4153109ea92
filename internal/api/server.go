package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"perimguard/internal/assessments"
	"perimguard/internal/config"
	"perimguard/internal/escalations"
	"perimguard/internal/model"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	RecomputeAll(ctx context.Context) (int, error)
}

type Server struct {
	cfg         *config.Manager
	assessments *assessments.Store
	escalations *escalations.Store
	engine      EngineControl
	logger      *slog.Logger
	version     string
	started     time.Time
}

type statusResponse struct {
	Status      string       `json:"status"`
	Time        string       `json:"time"`
	Version     string       `json:"version"`
	UptimeSec   int64        `json:"uptime_sec"`
	ConfigPath  string       `json:"config_path"`
	Assessments int          `json:"assessments"`
	Escalations int          `json:"escalations"`
	Ingest      ingestStatus `json:"ingest"`
	API         apiStatus    `json:"api"`
	Risk        riskStatus   `json:"risk"`
}

type ingestStatus struct {
	REST     bool `json:"rest"`
	FileTail bool `json:"file_tail"`
	Kafka    bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type riskStatus struct {
	Timezone   string                  `json:"timezone"`
	DayStart   string                  `json:"day_start"`
	DuskStart  string                  `json:"dusk_start"`
	NightStart string                  `json:"night_start"`
	Thresholds config.ThresholdsConfig `json:"thresholds"`
}

func Start(ctx context.Context, cfg *config.Manager, assessStore *assessments.Store, escalationStore *escalations.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:         cfg,
		assessments: assessStore,
		escalations: escalationStore,
		engine:      engine,
		logger:      logger,
		version:     version,
		started:     time.Now().UTC(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/assessments", server.handleAssessments)
	mux.HandleFunc("/assessments/", server.handleAssessment)
	mux.HandleFunc("/escalations", server.handleEscalations)
	mux.HandleFunc("/config/risk", server.handleRiskConfig)
	mux.HandleFunc("/admin/recompute", server.handleRecompute)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:      "ok",
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		Version:     s.version,
		UptimeSec:   int64(time.Since(s.started).Seconds()),
		ConfigPath:  s.cfg.Path(),
		Assessments: s.assessments.Count(),
		Escalations: s.escalations.Count(),
		Ingest: ingestStatus{
			REST:     cfg.Ingest.REST.Enabled,
			FileTail: cfg.Ingest.FileTail.Enabled,
			Kafka:    cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Risk: riskStatus{
			Timezone:   cfg.Risk.Timezone,
			DayStart:   cfg.Risk.DayStart,
			DuskStart:  cfg.Risk.DuskStart,
			NightStart: cfg.Risk.NightStart,
			Thresholds: cfg.Risk.Thresholds,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list := s.assessments.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": list,
		"count":       len(list),
	})
}

// handleAssessment serves one subject: /assessments/{type}/{key}. Radar
// keys contain '#', so the key segment is the full remaining path.
func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/assessments/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	subjectType := model.SubjectType(strings.ToUpper(parts[0]))
	a, ok := s.assessments.Get(subjectType, parts[1])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Escalation
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.escalations.Since(ts)
	} else {
		list = s.escalations.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"escalations": list,
		"count":       len(list),
	})
}

func (s *Server) handleRiskConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"risk": s.cfg.Get().Risk,
		})
	case http.MethodPut, http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		risk := current.Risk
		// Detach slice fields before unmarshalling: Unmarshal writes into
		// an existing backing array in place, which would mutate the live
		// config even when validation rejects the update.
		risk.Weights.BucketDensity = append([]int(nil), current.Risk.Weights.BucketDensity...)
		if err := json.Unmarshal(body, &risk); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		next.Risk = risk
		if err := s.cfg.Update(&next); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if s.engine != nil {
			s.engine.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	count, err := s.engine.RecomputeAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "recomputed": count})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "recomputed": count})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.engine != nil {
			s.engine.Reset()
		}
	case "assessments":
		if s.assessments != nil {
			s.assessments.Clear()
		}
	case "escalations":
		if s.escalations != nil {
			s.escalations.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
