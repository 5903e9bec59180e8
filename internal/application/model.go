// Package application is the terminal front end of the import wizard. It
// drives a wizard.Session from a bubbletea program: the step's actions are
// a menu, and column mapping is edited in a local draft that is handed to
// the session when the user continues.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

// Backend is the import service as the terminal wizard uses it.
type Backend interface {
	wizard.Backend
	DownloadExport(ctx context.Context, filename string, w io.Writer) (int64, error)
	Job(ctx context.Context, jobID core.JobID) (*core.JobStatus, error)
	Health(ctx context.Context) error
}

// Options configures a Model.
type Options struct {
	// File prefills the upload path.
	File string

	// ImportType preselects the import type. Empty selects the default.
	ImportType core.ImportType

	// MaxFileSize rejects larger files before they are read. Zero disables the check.
	MaxFileSize int64

	// PreviewRows is how many rows the preview table shows.
	PreviewRows int

	// CallTimeout bounds each backend round trip.
	CallTimeout time.Duration

	// ExportDir receives downloaded export files.
	ExportDir string
}

type mode int

const (
	modeMenu mode = iota
	modeInput
	modeMapping
)

// Messages returned by commands.
type (
	doneMsg    string
	errMsg     struct{ err error }
	catalogMsg struct{ cat *wizard.Catalog }
	suggestMsg struct{}
	healthMsg  struct{ err error }
	jobMsg     struct{ job *core.JobStatus }
)

// inputField is a one-line text prompt.
type inputField struct {
	label  string
	value  string
	submit func(string) tea.Cmd
}

// Model is the bubbletea model of the terminal wizard.
type Model struct {
	ctx     context.Context
	sess    *wizard.Session
	backend Backend
	opts    Options

	stage  wizard.Stage
	menu   *Menu
	cursor int
	mode   mode
	input  inputField

	path       string
	importType core.ImportType
	saveMode   core.SaveMode

	catalog   *wizard.Catalog
	job       *core.JobStatus
	draft     *core.MappingDraft
	mapCursor int

	busy      string
	status    string
	err       error
	backendOK *bool

	width  int
	height int
}

// New creates a Model around a fresh session.
func New(ctx context.Context, backend Backend, opts Options) *Model {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = wizard.DefaultPreviewRows
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	m := &Model{
		ctx:        ctx,
		sess:       wizard.NewSession(backend),
		backend:    backend,
		opts:       opts,
		path:       opts.File,
		importType: opts.ImportType.OrDefault(),
		saveMode:   core.DefaultSaveMode,
		draft:      core.NewMappingDraft(nil),
	}
	m.rebuild()
	return m
}

// Session exposes the wizard session the model drives.
func (m *Model) Session() *wizard.Session {
	return m.sess
}

// Init pings the backend so a dead service shows up before the first upload.
func (m *Model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		return healthMsg{err: m.backend.Health(ctx)}
	}
}

// Update handles key presses and command results.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeInput:
			return m, m.updateInput(msg)
		case modeMapping:
			m.updateMapping(msg)
			return m, nil
		default:
			return m, m.updateMenu(msg)
		}

	case healthMsg:
		ok := msg.err == nil
		m.backendOK = &ok
		if msg.err != nil {
			slog.Warn("backend health check failed", "error", msg.err)
			m.err = msg.err
		}
		return m, nil

	case catalogMsg:
		m.busy = ""
		m.catalog = msg.cat
		m.status = fmt.Sprintf("%d fields, %d templates", len(msg.cat.Fields), len(msg.cat.Templates))
		m.rebuild()
		return m, nil

	case suggestMsg:
		m.busy = ""
		suggested := m.sess.Snapshot().Mapping
		m.draft.ApplySuggestion(suggested)
		if len(suggested) == 0 {
			m.status = "No suggestion for these columns"
		} else {
			m.status = fmt.Sprintf("Suggested %d columns", len(suggested))
		}
		m.rebuild()
		return m, nil

	case jobMsg:
		m.busy = ""
		m.job = msg.job
		m.status = "Import finished"
		return m, m.rebuild()

	case doneMsg:
		m.busy = ""
		m.status = string(msg)
		return m, m.rebuild()

	case errMsg:
		m.busy = ""
		if errors.Is(msg.err, wizard.ErrStale) {
			// The user moved on; the late result is meaningless now.
			return m, nil
		}
		m.err = msg.err
		m.rebuild()
		return m, nil
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.menu.Items)-1 {
			m.cursor++
		}
	case "esc":
		if m.menu.Parent != nil {
			m.menu, m.cursor = m.menu.Parent, 0
		}
	case "enter":
		if m.busy != "" {
			return nil
		}
		item := m.menu.Items[m.cursor]
		switch {
		case item.Action != nil:
			m.err = nil
			return item.Action()
		case item.Submenu != nil:
			m.menu, m.cursor = item.Submenu, 0
		}
	}
	return nil
}

func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeMenu
	case tea.KeyEnter:
		m.mode = modeMenu
		return m.input.submit(m.input.value)
	case tea.KeyBackspace:
		if r := []rune(m.input.value); len(r) > 0 {
			m.input.value = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input.value += " "
	case tea.KeyRunes:
		m.input.value += string(msg.Runes)
	}
	return nil
}

// updateMapping edits the draft: up and down pick a column, left and
// right cycle its field, x excludes it and backspace clears it.
func (m *Model) updateMapping(msg tea.KeyMsg) {
	columns := m.sess.Snapshot().Columns
	if len(columns) == 0 {
		m.mode = modeMenu
		return
	}
	col := columns[min(m.mapCursor, len(columns)-1)]

	switch msg.String() {
	case "up", "k":
		if m.mapCursor > 0 {
			m.mapCursor--
		}
	case "down", "j":
		if m.mapCursor < len(columns)-1 {
			m.mapCursor++
		}
	case "left", "h":
		m.draft.Set(col, m.cycleField(m.draft.Mapping()[col], -1))
	case "right", "l":
		m.draft.Set(col, m.cycleField(m.draft.Mapping()[col], 1))
	case "x":
		m.draft.Set(col, core.DoNotImport)
	case "backspace":
		m.draft.Set(col, "")
	case "enter", "esc":
		m.mode = modeMenu
	}
}

// fieldChoices is the cycle order of the mapping editor: unmapped, every
// catalog field, then excluded.
func (m *Model) fieldChoices() []string {
	out := []string{""}
	if m.catalog != nil {
		out = append(out, m.catalog.Fields...)
	}
	return append(out, core.DoNotImport)
}

func (m *Model) cycleField(current string, step int) string {
	choices := m.fieldChoices()
	i := 0
	for j, c := range choices {
		if c == current {
			i = j
			break
		}
	}
	i = (i + step + len(choices)) % len(choices)
	return choices[i]
}

func (m *Model) startInput(label, value string, submit func(string) tea.Cmd) {
	m.mode = modeInput
	m.input = inputField{label: label, value: value, submit: submit}
}

// rebuild refreshes the menu for the session's current step. Entering the
// Mapping step starts a new draft from the session's mapping and loads the
// catalog when it is missing.
func (m *Model) rebuild() tea.Cmd {
	st := m.sess.Snapshot()
	var cmd tea.Cmd
	if st.Stage != m.stage {
		if st.Stage == wizard.StageMapping {
			m.draft = core.NewMappingDraft(st.Mapping)
			m.mapCursor = 0
			if m.catalog == nil {
				cmd = m.loadCatalog()
			}
		}
		if st.Stage == wizard.StageUpload {
			m.catalog = nil
			m.job = nil
		}
		m.stage = st.Stage
	}

	title := ""
	if m.menu != nil {
		title = m.menu.Title
	}
	m.menu = buildMenuTree(m, st)
	if m.menu.Title != title || m.cursor >= len(m.menu.Items) {
		m.cursor = 0
	}
	return cmd
}

/* ----------------------------------------
	COMMANDS
---------------------------------------- */

// call runs fn with a bounded context and turns its error into errMsg.
func (m *Model) call(busy string, fn func(ctx context.Context) tea.Msg) tea.Cmd {
	m.busy = busy
	m.status = ""
	parent, timeout := m.ctx, m.opts.CallTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return fn(ctx)
	}
}

func result(err error, done string) tea.Msg {
	if err != nil {
		return errMsg{err: err}
	}
	return doneMsg(done)
}

func (m *Model) upload() tea.Cmd {
	path, importType, limit := m.path, m.importType, m.opts.MaxFileSize
	if path == "" {
		m.err = fmt.Errorf("%w: choose a file first", wizard.ErrInvalid)
		return nil
	}
	return m.call("Uploading "+filepath.Base(path)+"...", func(ctx context.Context) tea.Msg {
		data, err := readFile(path, limit)
		if err != nil {
			return errMsg{err: err}
		}
		return result(m.sess.Upload(ctx, filepath.Base(path), data, importType), "Uploaded "+filepath.Base(path))
	})
}

// readFile reads path, refusing files over limit bytes.
func readFile(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s: file too large (%d bytes, max %d)", filepath.Base(path), info.Size(), limit)
	}
	return os.ReadFile(path)
}

func (m *Model) selectSheet(name string) tea.Cmd {
	return m.call("Loading sheet "+name+"...", func(ctx context.Context) tea.Msg {
		return result(m.sess.SelectSheet(ctx, name), "Showing sheet "+name)
	})
}

func (m *Model) confirmPreview() tea.Cmd {
	return m.call("", func(ctx context.Context) tea.Msg {
		return result(m.sess.ConfirmPreview(ctx), "")
	})
}

func (m *Model) loadCatalog() tea.Cmd {
	return m.call("Loading fields and templates...", func(ctx context.Context) tea.Msg {
		cat, err := m.sess.LoadCatalog(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return catalogMsg{cat: cat}
	})
}

func (m *Model) autoSuggest() tea.Cmd {
	return m.call("Asking for a suggested mapping...", func(ctx context.Context) tea.Msg {
		if err := m.sess.AutoSuggest(ctx); err != nil {
			return errMsg{err: err}
		}
		return suggestMsg{}
	})
}

func (m *Model) confirmMapping() tea.Cmd {
	mapping := m.draft.Mapping().Restrict(m.sess.Snapshot().Columns)
	return m.call("", func(ctx context.Context) tea.Msg {
		return result(m.sess.ConfirmMapping(ctx, mapping), "")
	})
}

func (m *Model) saveTemplate(name string) tea.Cmd {
	return m.call("Saving template...", func(ctx context.Context) tea.Msg {
		tpl, err := m.sess.SaveTemplate(ctx, name)
		if err != nil {
			return errMsg{err: err}
		}
		return doneMsg(fmt.Sprintf("Template %q saved", tpl.Name))
	})
}

// submit runs the transform, then reads back the backend's job record.
// A failed lookup only costs the status line.
func (m *Model) submit() tea.Cmd {
	mode := m.saveMode
	return m.call("Importing...", func(ctx context.Context) tea.Msg {
		if err := m.sess.Submit(ctx, mode); err != nil {
			return errMsg{err: err}
		}
		jobID := m.sess.Snapshot().JobID
		job, err := m.backend.Job(ctx, jobID)
		if err != nil {
			slog.Warn("job status unavailable", "job_id", jobID, "error", err)
			return doneMsg("Import finished")
		}
		return jobMsg{job: job}
	})
}

func (m *Model) download(d core.Download) tea.Cmd {
	dest := filepath.Join(m.opts.ExportDir, d.Filename)
	return m.call("Downloading "+d.Filename+"...", func(ctx context.Context) tea.Msg {
		f, err := os.Create(dest)
		if err != nil {
			return errMsg{err: err}
		}
		n, err := m.backend.DownloadExport(ctx, d.Filename, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
			return errMsg{err: err}
		}
		slog.Info("export downloaded", "file", dest, "bytes", n)
		return doneMsg(fmt.Sprintf("Saved %s (%d bytes)", dest, n))
	})
}

func (m *Model) back() tea.Cmd {
	return func() tea.Msg { return result(m.sess.Back(), "") }
}

func (m *Model) reset() tea.Cmd {
	m.sess.Reset()
	m.importType = core.DefaultImportType
	m.saveMode = core.DefaultSaveMode
	m.status = "Started over"
	return m.rebuild()
}
