package web

import (
	"net/http"

	"github.com/JonMunkholm/importwizard/internal/core"
)

// handleCatalog loads target fields and templates for the Mapping step.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat, err := sessionFrom(r).LoadCatalog(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, cat)
}

type mappingEditRequest struct {
	Column string `json:"column"`
	Field  string `json:"field"`
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingEditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess := sessionFrom(r)
	if err := sess.SetMapping(req.Column, req.Field); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

type applyTemplateRequest struct {
	TemplateID core.TemplateID `json:"template_id"`
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req applyTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess := sessionFrom(r)
	if err := sess.ApplyTemplate(req.TemplateID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.AutoSuggest(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, sess, http.StatusOK)
}

type saveTemplateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	tpl, err := sessionFrom(r).SaveTemplate(r.Context(), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, tpl)
}
