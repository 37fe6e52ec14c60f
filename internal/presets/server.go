package presets

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// NewHandler serves the preset API and the preset files:
//
//	GET /api/presets             []Preset
//	GET /api/presets/{category}  Listing
//	GET /presets/...             static files under the root
func NewHandler(d *Dir, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/presets", func(w http.ResponseWriter, r *http.Request) {
		list, err := d.ListPresets(r.Context())
		if err != nil {
			logger.Error("list presets", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Cannot scan presets directory"})
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("GET /api/presets/{category}", func(w http.ResponseWriter, r *http.Request) {
		category := r.PathValue("category")
		l, err := d.ListSounds(r.Context(), category)
		if err != nil {
			// still answer with an empty listing so the client can carry on
			logger.Warn("list sounds", "category", category, "err", err)
			l = Listing{Name: category, Category: category, Sounds: []Sound{}}
		}
		writeJSON(w, http.StatusOK, l)
	})

	mux.Handle("GET /presets/", http.StripPrefix("/presets/", http.FileServer(http.Dir(d.Root()))))

	return logRequests(logger, mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start),
		)
	})
}
