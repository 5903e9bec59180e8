package application

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("236")).
			Padding(0, 1).
			MarginBottom(1)

	stepStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	stepDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	stepCurrentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1)
)

// severityStyles colors failed rows by tier.
var severityStyles = map[core.Severity]lipgloss.Style{
	core.SeverityCritical: errorStyle,
	core.SeverityWarning:  warnStyle,
	core.SeverityInfo:     dimStyle,
	core.SeveritySuccess:  successStyle,
}

const maxCellWidth = 24

// View renders the wizard.
func (m *Model) View() string {
	st := m.sess.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Import Wizard"))
	b.WriteString("\n")
	b.WriteString(renderSteps(st.Stage))
	b.WriteString("\n\n")

	switch st.Stage {
	case wizard.StageUpload:
		b.WriteString(m.viewUpload())
	case wizard.StagePreview:
		b.WriteString(m.viewPreview(st))
	case wizard.StageMapping:
		b.WriteString(m.viewMapping(st))
	case wizard.StageSummary:
		b.WriteString(m.viewSummary(st))
	case wizard.StageResult:
		b.WriteString(m.viewResult(st))
	}
	b.WriteString("\n\n")

	if m.mode == modeInput {
		fmt.Fprintf(&b, "%s: %s█\n", m.input.label, m.input.value)
	} else if m.mode == modeMenu {
		b.WriteString(m.viewMenu())
	}

	b.WriteString(m.viewFooter())
	return b.String()
}

func renderSteps(current wizard.Stage) string {
	parts := make([]string, 0, len(wizard.Stages))
	for _, s := range wizard.Stages {
		label := fmt.Sprintf("%d. %s", int(s)+1, s)
		switch {
		case s == current:
			parts = append(parts, stepCurrentStyle.Render(label))
		case s < current:
			parts = append(parts, stepDoneStyle.Render(label))
		default:
			parts = append(parts, stepStyle.Render(label))
		}
	}
	return strings.Join(parts, stepStyle.Render(" › "))
}

func (m *Model) viewMenu() string {
	var b strings.Builder
	b.WriteString(headerStyle.UnsetPadding().Render(m.menu.Title))
	b.WriteString("\n")
	for i, item := range m.menu.Items {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + item.Label))
		} else {
			b.WriteString("  " + item.Label)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewFooter() string {
	var b strings.Builder
	switch {
	case m.busy != "":
		b.WriteString(dimStyle.Render(m.busy))
		b.WriteString("\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render(core.FormatUserError(m.err)))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(successStyle.Render(m.status))
		b.WriteString("\n")
	}

	help := "↑/↓ move • enter select • esc back • q quit"
	switch m.mode {
	case modeMapping:
		help = "↑/↓ column • ←/→ field • x do not import • backspace clear • enter done"
	case modeInput:
		help = "enter confirm • esc cancel"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func (m *Model) viewUpload() string {
	var b strings.Builder
	b.WriteString("Choose an .xlsx, .xls or .csv file to import.\n")
	if m.backendOK != nil && !*m.backendOK {
		b.WriteString(warnStyle.Render("The import service did not answer the health check."))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewPreview(st wizard.State) string {
	p := st.Preview
	if p == nil {
		return dimStyle.Render("No preview loaded.")
	}
	head := p.Head(m.opts.PreviewRows)

	rows := make([][]string, 0, len(head.Rows))
	for _, r := range head.Rows {
		row := make([]string, len(head.Columns))
		for i, c := range head.Columns {
			row[i] = truncate(r[c], maxCellWidth)
		}
		rows = append(rows, row)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job %s • sheet %s • %d columns • showing %d of %d rows\n",
		st.JobID, p.ActiveSheet, len(p.Columns), len(head.Rows), len(p.Rows))
	b.WriteString(renderTable(truncateAll(head.Columns), rows, nil))
	return b.String()
}

func (m *Model) viewMapping(st wizard.State) string {
	mapping := m.draft.Mapping()

	rows := make([][]string, 0, len(st.Columns))
	for _, col := range st.Columns {
		rows = append(rows, []string{
			truncate(col, maxCellWidth),
			fieldLabel(mapping[col]),
			truncate(strings.Join(st.Preview.Samples(col, 3), ", "), maxCellWidth*2),
		})
	}

	cursor := -1
	if m.mode == modeMapping {
		cursor = m.mapCursor
	}
	highlight := func(row int) lipgloss.Style {
		if row == cursor {
			return selectedStyle
		}
		return lipgloss.NewStyle()
	}

	var b strings.Builder
	source := m.draft.Source().String()
	if m.draft.Edited() {
		source += ", edited"
	}
	fmt.Fprintf(&b, "Import type %s • mapping from %s\n", st.EffectiveImportType(), source)
	if m.catalog == nil {
		b.WriteString(dimStyle.Render("Target fields not loaded; only exclusions can be set."))
		b.WriteString("\n")
	}
	b.WriteString(renderTable([]string{"Column", "Field", "Samples"}, rows, highlight))
	if warn := duplicateWarning(core.Finalize(mapping, st.Columns)); warn != "" {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(warn))
	}
	return b.String()
}

func (m *Model) viewSummary(st wizard.State) string {
	sum := core.SummarizeMapping(st.Mapping, st.Columns)
	final := core.Finalize(st.Mapping, st.Columns)

	var b strings.Builder
	fmt.Fprintf(&b, "%d columns mapped, %d unmapped (%d excluded)\n\n", sum.Mapped, sum.Unmapped, sum.Excluded)

	cols := make([]string, 0, len(final))
	for col := range final {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	for _, col := range cols {
		fmt.Fprintf(&b, "  %s → %s\n", col, final[col])
	}
	if len(final) == 0 {
		b.WriteString(warnStyle.Render("Nothing is mapped; submitting will ask for a suggested mapping."))
		b.WriteString("\n")
	}
	if warn := duplicateWarning(final); warn != "" {
		b.WriteString(warnStyle.Render(warn))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nRows go to %s.", m.saveMode)
	return b.String()
}

func (m *Model) viewResult(st wizard.State) string {
	v := wizard.NewResultView(st.Result)
	if v == nil {
		return dimStyle.Render("No result.")
	}

	var b strings.Builder
	if m.job != nil {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render(jobLine(m.job)))
	}
	fmt.Fprintf(&b, "%s  %s  %s\n",
		fmt.Sprintf("Processed: %d", v.Totals.TotalProcessed),
		successStyle.Render(fmt.Sprintf("Success: %d", v.Totals.SuccessCount)),
		errorStyle.Render(fmt.Sprintf("Errors: %d", v.Totals.ErrorCount)),
	)

	if len(v.Failed) > 0 {
		rows := make([][]string, 0, len(v.Failed))
		for _, r := range v.Failed {
			rows = append(rows, []string{
				fmt.Sprint(r.Row),
				r.Label,
				truncate(strings.Join(append(slices.Clone(r.Errors), missingNote(r.Missing)...), "; "), maxCellWidth*3),
			})
		}
		style := func(row int) lipgloss.Style {
			if s, ok := severityStyles[v.Failed[row].Severity]; ok {
				return s
			}
			return lipgloss.NewStyle()
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Row", "Issue", "Details"}, rows, style))
	}

	if v.Download != nil {
		fmt.Fprintf(&b, "\nExport available: %s", v.Download.Filename)
	}
	return b.String()
}

// jobLine summarizes the backend's record of the job.
func jobLine(j *core.JobStatus) string {
	line := fmt.Sprintf("Job %s: %s", j.ID, j.Status)
	if j.Filename != "" {
		line += " (" + j.Filename + ")"
	}
	if j.CreatedAt != "" {
		line += ", created " + j.CreatedAt
	}
	return line
}

// renderTable draws a bordered table. rowStyle may be nil.
func renderTable(headers []string, rows [][]string, rowStyle func(row int) lipgloss.Style) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if rowStyle != nil {
				return rowStyle(row).Inherit(cellStyle)
			}
			return cellStyle
		}).
		String()
}

func fieldLabel(field string) string {
	switch field {
	case "":
		return dimStyle.Render("(unmapped)")
	case core.DoNotImport:
		return dimStyle.Render("do not import")
	default:
		return field
	}
}

func duplicateWarning(mapping core.ColumnMapping) string {
	dups := core.DuplicateTargets(mapping)
	if len(dups) == 0 {
		return ""
	}
	fields := make([]string, 0, len(dups))
	for f := range dups {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s ← %s", f, strings.Join(dups[f], ", ")))
	}
	return "Several columns map to the same field: " + strings.Join(parts, "; ")
}

func missingNote(missing []string) []string {
	if len(missing) == 0 {
		return nil
	}
	return []string{"missing " + strings.Join(missing, ", ")}
}

func truncateAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = truncate(s, maxCellWidth)
	}
	return out
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
