package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"perimguard/internal/config"
	"perimguard/internal/model"
	"perimguard/internal/normalize"
)

type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.Event
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.Event, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	batch, err := decodeBatch(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cfg := s.cfg.Get()
	accepted := 0
	for _, obj := range batch {
		if s.enqueue(obj, cfg) {
			accepted++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
		"failed":   len(batch) - accepted,
	})
}

// decodeBatch accepts either a single JSON object or an array of objects.
func decodeBatch(body []byte) ([]map[string]interface{}, error) {
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if trim[0] == '[' {
		var list []map[string]interface{}
		if err := json.Unmarshal(trim, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(trim, &obj); err != nil {
		return nil, err
	}
	return []map[string]interface{}{obj}, nil
}

func (s *RESTServer) enqueue(obj map[string]interface{}, cfg *config.Config) bool {
	fields := ParseJSONMap(obj)
	fields.Raw = "rest"
	ev, err := normalize.Normalize(*fields, cfg)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest normalize error", "err", err)
		}
		return false
	}
	ev.Source = "rest"
	SendNonBlocking(context.Background(), s.out, ev, s.logger)
	return true
}
