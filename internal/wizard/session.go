package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/tabular"
)

// Backend is the import service as the wizard uses it.
// *client.Client satisfies it.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*core.UploadResponse, error)
	Preview(ctx context.Context, jobID core.JobID, sheet string) (*core.PreviewData, error)
	Fields(ctx context.Context, importType core.ImportType) ([]string, error)
	Templates(ctx context.Context) ([]core.MappingTemplate, error)
	SaveTemplate(ctx context.Context, name string, mapping core.ColumnMapping) (*core.MappingTemplate, error)
	SuggestMapping(ctx context.Context, columns []string) (core.ColumnMapping, error)
	Transform(ctx context.Context, jobID core.JobID, req core.TransformRequest) (*core.TransformResult, error)
}

// Action names a user action that may have one call in flight at a time.
type Action string

const (
	ActionUpload       Action = "upload"
	ActionCatalog      Action = "catalog"
	ActionSuggest      Action = "suggest"
	ActionSaveTemplate Action = "save_template"
	ActionSubmit       Action = "submit"
)

// ErrUnknownTemplate means ApplyTemplate named a template not in the catalog.
var ErrUnknownTemplate = fmt.Errorf("%w: unknown template", core.ErrTemplate)

// Catalog is what the Mapping step offers: target fields and saved
// templates. Matches ranks the templates that fit the current columns.
type Catalog struct {
	ImportType core.ImportType        `json:"import_type"`
	Fields     []string               `json:"fields"`
	Templates  []core.MappingTemplate `json:"templates"`
	Matches    []core.TemplateMatch   `json:"matches,omitempty"`
}

// ticket identifies one in-flight call and the state it started from.
type ticket struct {
	action Action
	seq    uint64
	epoch  uint64
	stage  Stage
	jobID  core.JobID
}

// uploadedFile is the file behind the current job, kept to check sheet
// selections locally.
type uploadedFile struct {
	jobID core.JobID
	name  string
	data  []byte
}

// Session is the single writer of one wizard's State. Its methods are safe
// for concurrent use; backend calls run without holding the lock.
type Session struct {
	id       string
	backend  Backend
	resolver *core.Resolver

	mu       sync.Mutex
	state    State
	file     uploadedFile
	catalog  *Catalog
	inFlight map[Action]uint64
	seq      uint64
	created  time.Time
	touched  time.Time
}

// NewSession creates a session at the Upload step.
func NewSession(backend Backend) *Session {
	now := time.Now()
	return &Session{
		id:       uuid.NewString(),
		backend:  backend,
		resolver: core.NewResolver(backend),
		inFlight: make(map[Action]uint64),
		created:  now,
		touched:  now,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Catalog returns the last loaded catalog, or nil before LoadCatalog.
func (s *Session) Catalog() *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog == nil {
		return nil
	}
	return s.catalogCopy()
}

// InFlight reports whether action has a call running.
func (s *Session) InFlight(action Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[action]
	return ok
}

// Touch marks the session as active without changing it.
func (s *Session) Touch() {
	s.mu.Lock()
	s.touched = time.Now()
	s.mu.Unlock()
}

// LastActive returns when the session was last changed or touched.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Upload validates the file locally, sends it to the backend and moves to
// the Preview step. An empty importType selects the default.
func (s *Session) Upload(ctx context.Context, filename string, data []byte, importType core.ImportType) error {
	if importType != "" && !importType.Valid() {
		return fmt.Errorf("%w: unknown import type %q", ErrInvalid, importType)
	}

	t, err := s.begin(ActionUpload, StageUpload)
	if err != nil {
		return err
	}

	log := s.logger(ctx, "file", filename)

	// Unsupported or unreadable files fail here without a network call.
	local, err := tabular.Parse(filename, data)
	if err != nil {
		s.abandon(t)
		log.Info("upload rejected locally", "error", err)
		return err
	}

	resp, err := s.backend.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		s.abandon(t)
		return err
	}

	err = s.finish(t, Advance{Delta: UploadDelta{
		JobID:      resp.JobID,
		ImportType: importType,
		Preview:    resp.Preview,
	}})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.JobID == resp.JobID {
		s.file = uploadedFile{jobID: resp.JobID, name: filename, data: data}
	}
	s.mu.Unlock()
	log.Info("upload complete",
		"job_id", resp.JobID,
		"sheets", len(resp.Preview.Sheets),
		"columns", len(resp.Preview.Columns),
		"local_rows", len(local.Rows),
	)
	return nil
}

// SelectSheet switches the preview to another sheet. A sheet that does
// not parse locally is rejected before the backend is asked. When
// selections overlap, only the response for the latest one is applied;
// older ones return ErrStale.
func (s *Session) SelectSheet(ctx context.Context, sheet string) error {
	s.mu.Lock()
	if _, err := Transition(s.state, SheetSelected{Sheet: sheet}); err != nil {
		s.mu.Unlock()
		return err
	}
	file, jobID, epoch := s.file, s.state.JobID, s.state.Epoch
	s.mu.Unlock()

	if file.jobID == jobID && file.data != nil {
		if _, err := tabular.ParseSheet(file.name, file.data, sheet); err != nil {
			s.logger(ctx, "sheet", sheet).Info("sheet rejected locally", "error", err)
			return err
		}
	}

	s.mu.Lock()
	if s.state.Epoch != epoch || s.state.JobID != jobID {
		s.mu.Unlock()
		return ErrStale
	}
	next, err := Transition(s.state, SheetSelected{Sheet: sheet})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.setState(next)
	s.mu.Unlock()

	preview, err := s.backend.Preview(ctx, jobID, sheet)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A reset or a new upload may have replaced the job meanwhile.
	if s.state.Epoch != epoch || s.state.JobID != jobID {
		return ErrStale
	}
	next, err = Transition(s.state, SheetLoaded{Preview: preview})
	if err != nil {
		return err
	}
	s.setState(next)
	return nil
}

// ConfirmPreview moves from Preview to Mapping.
func (s *Session) ConfirmPreview(ctx context.Context) error {
	return s.apply(Advance{Delta: PreviewDelta{}})
}

// LoadCatalog fetches the target fields and saved templates concurrently.
func (s *Session) LoadCatalog(ctx context.Context) (*Catalog, error) {
	t, err := s.begin(ActionCatalog, StageMapping)
	if err != nil {
		return nil, err
	}
	importType := s.Snapshot().EffectiveImportType()

	cat := &Catalog{ImportType: importType}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fields, err := s.backend.Fields(gctx, importType)
		if err != nil {
			return err
		}
		cat.Fields = fields
		return nil
	})
	g.Go(func() error {
		templates, err := s.backend.Templates(gctx)
		if err != nil {
			return err
		}
		cat.Templates = templates
		return nil
	})
	if err := g.Wait(); err != nil {
		s.abandon(t)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.release(t); err != nil {
		return nil, err
	}
	s.catalog = cat
	s.touched = time.Now()
	return s.catalogCopy(), nil
}

// SetMapping sets one column's target field. An empty field clears it.
func (s *Session) SetMapping(column, field string) error {
	return s.apply(MappingEdited{Column: column, Field: field})
}

// ApplyTemplate replaces the working mapping with a catalog template.
func (s *Session) ApplyTemplate(id core.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog == nil {
		return fmt.Errorf("%w %q: catalog not loaded", ErrUnknownTemplate, id)
	}
	for _, tpl := range s.catalog.Templates {
		if tpl.ID == id {
			next, err := Transition(s.state, MappingApplied{Source: core.SourceTemplate, Mapping: tpl.ColumnMap})
			if err != nil {
				return err
			}
			s.setState(next)
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownTemplate, id)
}

// AutoSuggest replaces the working mapping with the backend's suggestion.
func (s *Session) AutoSuggest(ctx context.Context) error {
	t, err := s.begin(ActionSuggest, StageMapping)
	if err != nil {
		return err
	}
	columns := s.Snapshot().Columns

	m, err := s.resolver.RequestAutoSuggestion(ctx, columns)
	if err != nil {
		s.abandon(t)
		return err
	}
	return s.finish(t, MappingApplied{Source: core.SourceSuggestion, Mapping: m})
}

// SaveTemplate stores the working mapping under name and adds it to the
// loaded catalog.
func (s *Session) SaveTemplate(ctx context.Context, name string) (*core.MappingTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalid)
	}

	t, err := s.begin(ActionSaveTemplate, StageMapping, StageSummary)
	if err != nil {
		return nil, err
	}
	st := s.Snapshot()

	mapping := make(core.ColumnMapping, len(st.Mapping))
	for col, field := range st.Mapping.Restrict(st.Columns) {
		if field != "" {
			mapping[col] = field
		}
	}

	tpl, err := s.backend.SaveTemplate(ctx, name, mapping)
	if err != nil {
		s.abandon(t)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The template exists server-side even if the session moved on.
	if err := s.release(t); err == nil && s.catalog != nil {
		s.catalog.Templates = append(s.catalog.Templates, *tpl)
	}
	s.logger(ctx, "template", tpl.Name).Info("template saved", "columns", len(mapping))
	return tpl, nil
}

// ConfirmMapping moves from Mapping to Summary. A non-nil mapping replaces
// the working mapping first.
func (s *Session) ConfirmMapping(ctx context.Context, mapping core.ColumnMapping) error {
	return s.apply(Advance{Delta: MappingDelta{Mapping: mapping}})
}

// Submit transforms the job with the finalized mapping and moves to the
// Result step. An empty mapping triggers one auto-suggestion; if that is
// empty too, core.ErrNoMapping is returned and the session stays put.
func (s *Session) Submit(ctx context.Context, mode core.SaveMode) error {
	if mode == "" {
		mode = core.DefaultSaveMode
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown save mode %q", ErrInvalid, mode)
	}

	t, err := s.begin(ActionSubmit, StageSummary)
	if err != nil {
		return err
	}
	st := s.Snapshot()
	log := s.logger(ctx, "job_id", st.JobID, "save_mode", mode)

	mapping, suggested, err := s.resolver.ForSubmission(ctx, st.Mapping, st.Columns)
	if err != nil {
		s.abandon(t)
		if errors.Is(err, core.ErrNoMapping) {
			log.Info("submission blocked", "reason", "empty mapping")
		}
		return err
	}

	result, err := s.backend.Transform(ctx, st.JobID, core.TransformRequest{
		Mapping:    mapping,
		Sheet:      st.ActiveSheet(),
		SaveMode:   mode,
		ImportType: st.EffectiveImportType(),
	})
	if err != nil {
		s.abandon(t)
		return err
	}

	if err := s.finish(t, Advance{Delta: SummaryDelta{Result: result}}); err != nil {
		return err
	}
	log.Info("import complete",
		"success", result.Success,
		"errors", result.Errors,
		"suggested_mapping", suggested,
	)
	return nil
}

// Back retreats one step.
func (s *Session) Back() error {
	return s.apply(Retreat{})
}

// Reset returns to Upload and clears everything. Calls still in flight
// finish with ErrStale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, _ := Transition(s.state, Reset{})
	s.setState(next)
	s.file = uploadedFile{}
	s.catalog = nil
	clear(s.inFlight)
}

func (s *Session) apply(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Transition(s.state, ev)
	if err != nil {
		return err
	}
	s.setState(next)
	return nil
}

// setState must be called with mu held.
func (s *Session) setState(next State) {
	s.state = next
	s.touched = time.Now()
}

// begin marks action in flight if the session is at one of stages.
func (s *Session) begin(action Action, stages ...Stage) (ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := false
	for _, st := range stages {
		if s.state.Stage == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return ticket{}, ErrWrongStage
	}
	if _, busy := s.inFlight[action]; busy {
		return ticket{}, ErrBusy
	}

	s.seq++
	s.inFlight[action] = s.seq
	return ticket{action: action, seq: s.seq, epoch: s.state.Epoch, stage: s.state.Stage, jobID: s.state.JobID}, nil
}

// release clears t's in-flight mark and reports ErrStale when the session
// has moved to another epoch, stage or job since t began. It must be
// called with mu held.
func (s *Session) release(t ticket) error {
	if s.inFlight[t.action] == t.seq {
		delete(s.inFlight, t.action)
	}
	if s.state.Epoch != t.epoch || s.state.Stage != t.stage || s.state.JobID != t.jobID {
		return ErrStale
	}
	return nil
}

// abandon releases t after a failed call.
func (s *Session) abandon(t ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.release(t)
}

// finish releases t and, unless stale, applies ev.
func (s *Session) finish(t ticket, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.release(t); err != nil {
		return err
	}
	next, err := Transition(s.state, ev)
	if err != nil {
		return err
	}
	s.setState(next)
	return nil
}

// catalogCopy must be called with mu held.
func (s *Session) catalogCopy() *Catalog {
	c := *s.catalog
	c.Fields = append([]string(nil), s.catalog.Fields...)
	c.Templates = append([]core.MappingTemplate(nil), s.catalog.Templates...)
	c.Matches = core.MatchTemplates(c.Templates, s.state.Columns)
	return &c
}

func (s *Session) logger(ctx context.Context, args ...any) *slog.Logger {
	ctx = logging.ContextWithSessionID(ctx, s.id)
	return logging.WithFields(ctx, args...)
}
