package web

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importwizard/internal/client"
	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

type submitRequest struct {
	SaveMode string `json:"save_mode"`
}

// handleSubmit finalizes the mapping and runs the transform.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	mode, err := core.ParseSaveMode(req.SaveMode)
	if err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}

	sess := sessionFrom(r)
	if err := sess.Submit(r.Context(), mode); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

// handleReport returns the classified result of the last transform.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r).Snapshot()
	if st.Stage != wizard.StageResult || st.Result == nil {
		s.respondError(w, r, wizard.ErrWrongStage)
		return
	}

	writeJSON(w, struct {
		*wizard.ResultView
		Rows []core.ClassifiedRow `json:"rows"`
	}{
		ResultView: wizard.NewResultView(st.Result),
		Rows:       core.ClassifyRows(st.Result.Report.Rows),
	})
}

// handleJob returns the backend's record of the session's job.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r).Snapshot()
	if st.JobID == "" {
		s.respondError(w, r, wizard.ErrWrongStage)
		return
	}

	job, err := s.backend.Job(r.Context(), st.JobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, job)
}

// handleExport streams an export file from the backend. Only names that
// ResolveDownload accepts are proxied.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	// chi matches on the raw path when the request has one.
	if r.URL.RawPath != "" {
		if name, err := url.PathUnescape(filename); err == nil {
			filename = name
		}
	}
	d, ok := core.ResolveDownload(filename)
	if !ok || d.Filename != filename {
		s.respondError(w, r, badRequest(errors.New("not a downloadable export name")))
		return
	}

	ew := &exportWriter{w: w, filename: d.Filename}
	n, err := s.backend.DownloadExport(r.Context(), d.Filename, ew)
	if err != nil {
		if !ew.started {
			s.respondError(w, r, err)
			return
		}
		// Headers are gone; the client sees a truncated body.
		logging.FromContext(r.Context()).Error("export stream interrupted",
			"file", d.Filename, "bytes", n, "error", err)
		return
	}
	if !ew.started {
		ew.writeHeader()
	}
	logging.FromContext(r.Context()).Info("export served", "file", d.Filename, "bytes", n)
}

// exportWriter sets download headers on the first write, so a backend
// failure before any byte arrives can still become a JSON error.
type exportWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (e *exportWriter) writeHeader() {
	e.started = true
	ctype := mime.TypeByExtension(path.Ext(e.filename))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	e.w.Header().Set("Content-Type", ctype)
	e.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.filename}))
	e.w.WriteHeader(http.StatusOK)
}

func (e *exportWriter) Write(p []byte) (int, error) {
	if !e.started {
		e.writeHeader()
	}
	return e.w.Write(p)
}

// limiterReporter is implemented by backends that bound heavy calls.
type limiterReporter interface {
	Limiter() *client.Limiter
}

// healthTimeout bounds the backend check in /health.
const healthTimeout = 3 * time.Second

// handleHealth reports liveness and whether the backend answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := map[string]any{
		"status":   "ok",
		"backend":  "ok",
		"sessions": s.store.Len(),
	}
	if lr, ok := s.backend.(limiterReporter); ok && lr.Limiter() != nil {
		resp["backend_calls"] = lr.Limiter().Status()
	}
	status := http.StatusOK
	if err := s.backend.Health(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("backend health check failed", "error", err)
		resp["status"] = "degraded"
		resp["backend"] = core.MapError(err).Message
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, resp)
}
