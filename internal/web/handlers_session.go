package web

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

// multipartOverhead allows for form boundaries and the import_type field on
// top of the file itself.
const multipartOverhead = 1 << 20

// respondView writes the session's current view.
func (s *Server) respondView(w http.ResponseWriter, sess *wizard.Session, status int) {
	writeJSONStatus(w, status, sess.Render(s.cfg.Upload.PreviewRows))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Create()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "session_id", sess.ID()).Info("wizard session created")
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	s.respondView(w, sess, http.StatusCreated)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, sessionFrom(r), http.StatusOK)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.store.Delete(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload accepts a multipart "file" plus optional "import_type" and
// moves the session to the Preview step.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		// The multipart reader does not always keep the MaxBytesError in the chain.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, &http.MaxBytesError{Limit: maxSize})
			return
		}
		s.respondError(w, r, badRequest(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest(errors.New("no file provided")))
		return
	}
	defer file.Close()

	importType, err := core.ParseImportType(r.FormValue("import_type"))
	if err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if int64(len(data)) > maxSize {
		s.respondError(w, r, &http.MaxBytesError{Limit: maxSize})
		return
	}

	if err := sess.Upload(r.Context(), header.Filename, data, importType); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

type sheetRequest struct {
	Sheet string `json:"sheet"`
}

func (s *Server) handleSelectSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess := sessionFrom(r)
	if err := sess.SelectSheet(r.Context(), req.Sheet); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

type nextRequest struct {
	Mapping core.ColumnMapping `json:"mapping,omitempty"`
}

// handleNext advances from Preview or Mapping. Upload and Summary advance
// through their own routes because they call the backend.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	sess := sessionFrom(r)
	var err error
	switch sess.Snapshot().Stage {
	case wizard.StagePreview:
		err = sess.ConfirmPreview(r.Context())
	case wizard.StageMapping:
		err = sess.ConfirmMapping(r.Context(), req.Mapping)
	default:
		err = wizard.ErrWrongStage
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Back(); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	logging.FromContext(r.Context()).Info("wizard session reset")
	s.respondView(w, sess, http.StatusOK)
}
