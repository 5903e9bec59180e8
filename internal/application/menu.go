package application

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

/* ----------------------------------------
	MENU TREE
---------------------------------------- */

type MenuItem struct {
	Label   string
	Submenu *Menu
	Action  func() tea.Cmd
}

type Menu struct {
	Title  string
	Items  []MenuItem
	Parent *Menu
}

// linkParents wires every submenu to its parent and points "Back" items
// at the parent menu.
func linkParents(menu *Menu, parent *Menu) {
	menu.Parent = parent

	for i := range menu.Items {
		item := &menu.Items[i]

		if item.Label == "Back" && item.Action == nil {
			item.Submenu = parent
			continue
		}

		if item.Submenu != nil {
			linkParents(item.Submenu, menu)
		}
	}
}

/* ----------------------------------------
	MENU TREE DEFINITION
---------------------------------------- */

// buildMenuTree returns the actions available on the current step.
func buildMenuTree(m *Model, st wizard.State) *Menu {
	var root *Menu
	switch st.Stage {
	case wizard.StageUpload:
		root = loadUploadMenu(m)
	case wizard.StagePreview:
		root = loadPreviewMenu(m, st)
	case wizard.StageMapping:
		root = loadMappingMenu(m)
	case wizard.StageSummary:
		root = loadSummaryMenu(m)
	default:
		root = loadResultMenu(m, st)
	}

	linkParents(root, nil)
	return root
}

/* ----------------------------------------
	LOAD MENUS
---------------------------------------- */

func loadUploadMenu(m *Model) *Menu {
	types := &Menu{Title: "Import type"}
	for _, t := range core.ImportTypes {
		types.Items = append(types.Items, MenuItem{
			Label:  marked(string(t), t == m.importType),
			Action: func() tea.Cmd { m.importType = t; m.rebuild(); return nil },
		})
	}
	types.Items = append(types.Items, MenuItem{Label: "Back"})

	file := m.path
	if file == "" {
		file = "(none)"
	}

	return &Menu{
		Title: "Upload",
		Items: []MenuItem{
			{Label: "File: " + file, Action: func() tea.Cmd {
				m.startInput("File path", m.path, func(v string) tea.Cmd { m.path = v; m.rebuild(); return nil })
				return nil
			}},
			{Label: fmt.Sprintf("Import type: %s ->", m.importType), Submenu: types},
			{Label: "Upload", Action: m.upload},
			{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
		},
	}
}

func loadPreviewMenu(m *Model, st wizard.State) *Menu {
	items := []MenuItem{}

	if st.Preview != nil && len(st.Preview.Sheets) > 1 {
		sheets := &Menu{Title: "Sheet"}
		for _, name := range st.Preview.Sheets {
			sheets.Items = append(sheets.Items, MenuItem{
				Label:  marked(name, name == st.Preview.ActiveSheet),
				Action: func() tea.Cmd { return m.selectSheet(name) },
			})
		}
		sheets.Items = append(sheets.Items, MenuItem{Label: "Back"})
		items = append(items, MenuItem{Label: "Sheet: " + st.ActiveSheet() + " ->", Submenu: sheets})
	}

	items = append(items,
		MenuItem{Label: "Continue to mapping", Action: m.confirmPreview},
		MenuItem{Label: "Back", Action: m.back},
		MenuItem{Label: "Start over", Action: m.reset},
	)
	return &Menu{Title: "Preview", Items: items}
}

func loadMappingMenu(m *Model) *Menu {
	templates := &Menu{Title: "Templates"}
	if m.catalog != nil {
		scores := make(map[core.TemplateID]float64, len(m.catalog.Matches))
		for _, match := range m.catalog.Matches {
			scores[match.Template.ID] = match.Score
		}
		for _, tpl := range m.catalog.Templates {
			label := fmt.Sprintf("%s (%d columns)", tpl.Name, len(tpl.ColumnMap))
			if score, ok := scores[tpl.ID]; ok {
				label = fmt.Sprintf("%s (%d columns, %.0f%% match)", tpl.Name, len(tpl.ColumnMap), score*100)
			}
			templates.Items = append(templates.Items, MenuItem{
				Label: label,
				Action: func() tea.Cmd {
					m.draft.ApplyTemplate(tpl)
					m.status = fmt.Sprintf("Template %q applied", tpl.Name)
					m.rebuild()
					return nil
				},
			})
		}
	}
	if len(templates.Items) == 0 {
		templates.Items = append(templates.Items, MenuItem{Label: "No saved templates"})
	}
	templates.Items = append(templates.Items, MenuItem{Label: "Back"})

	return &Menu{
		Title: "Mapping",
		Items: []MenuItem{
			{Label: "Edit columns", Action: func() tea.Cmd { m.mode = modeMapping; return nil }},
			{Label: "Apply template ->", Submenu: templates},
			{Label: "Auto-suggest", Action: m.autoSuggest},
			{Label: "Reload fields and templates", Action: m.loadCatalog},
			{Label: "Continue to summary", Action: m.confirmMapping},
			{Label: "Back", Action: m.back},
			{Label: "Start over", Action: m.reset},
		},
	}
}

func loadSummaryMenu(m *Model) *Menu {
	modes := &Menu{Title: "Save mode"}
	for _, mode := range core.SaveModes {
		modes.Items = append(modes.Items, MenuItem{
			Label:  marked(string(mode), mode == m.saveMode),
			Action: func() tea.Cmd { m.saveMode = mode; m.rebuild(); return nil },
		})
	}
	modes.Items = append(modes.Items, MenuItem{Label: "Back"})

	return &Menu{
		Title: "Summary",
		Items: []MenuItem{
			{Label: fmt.Sprintf("Save mode: %s ->", m.saveMode), Submenu: modes},
			{Label: "Save mapping as template", Action: func() tea.Cmd {
				m.startInput("Template name", "", m.saveTemplate)
				return nil
			}},
			{Label: "Submit", Action: m.submit},
			{Label: "Back", Action: m.back},
			{Label: "Start over", Action: m.reset},
		},
	}
}

func loadResultMenu(m *Model, st wizard.State) *Menu {
	items := []MenuItem{}
	if d, ok := core.ResolveDownload(st.Result.ExportPathOrEmpty()); ok {
		items = append(items, MenuItem{Label: "Download " + d.Filename, Action: func() tea.Cmd { return m.download(d) }})
	}
	items = append(items,
		MenuItem{Label: "Start over", Action: m.reset},
		MenuItem{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
	)
	return &Menu{Title: "Result", Items: items}
}

// marked prefixes the current choice of a selection menu.
func marked(label string, current bool) string {
	if current {
		return "• " + label
	}
	return "  " + label
}
