package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/wikisync/internal/model"
)

// PagePickerAction represents the action to perform after page selection.
type PagePickerAction int

const (
	// PagePickerActionNone means no action was taken (user quit).
	PagePickerActionNone PagePickerAction = iota
	// PagePickerActionOpen means the user picked a page to open.
	PagePickerActionOpen
)

// PagePickerResult contains the result of the page picker TUI interaction.
type PagePickerResult struct {
	Action   PagePickerAction
	Identity model.Identity
}

type pagePickerPhase int

const (
	phaseSpace pagePickerPhase = iota
	phasePage
)

type pagePickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultPagePickerKeyMap() pagePickerKeyMap {
	return pagePickerKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "select"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "backspace"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// PagePickerModel is the BubbleTea model for picking a wiki page, first its
// space and then the page itself.
type PagePickerModel struct {
	spaces    []model.Space
	protected func(model.Identity) bool
	cursor    int
	space     int
	phase     pagePickerPhase
	keys      pagePickerKeyMap
	result    PagePickerResult
	showHelp  bool
	width     int
	height    int
	quitting  bool
}

var pagePickerStyles = struct {
	Title     lipgloss.Style
	Help      lipgloss.Style
	Item      lipgloss.Style
	Selected  lipgloss.Style
	Disabled  lipgloss.Style
	Status    lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Item:      lipgloss.NewStyle().Padding(0, 2),
	Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Padding(0, 2),
	Disabled:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 2),
	Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Highlight: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
}

// NewPagePickerModel creates a picker over spaces. Pages for which protected
// returns true are listed but cannot be picked. A nil protected allows all.
func NewPagePickerModel(spaces []model.Space, protected func(model.Identity) bool) PagePickerModel {
	if protected == nil {
		protected = func(model.Identity) bool { return false }
	}
	return PagePickerModel{
		spaces:    spaces,
		protected: protected,
		keys:      defaultPagePickerKeyMap(),
		phase:     phaseSpace,
	}
}

// Init implements tea.Model.
func (m PagePickerModel) Init() tea.Cmd {
	return nil
}

func (m PagePickerModel) items() int {
	if m.phase == phaseSpace {
		return len(m.spaces)
	}
	return len(m.spaces[m.space].Documents)
}

// Update implements tea.Model.
func (m PagePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, m.keys.Down):
			if m.cursor < m.items()-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, m.keys.Back):
			if m.phase == phasePage {
				m.phase = phaseSpace
				m.cursor = m.space
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Select):
			if m.items() == 0 {
				return m, nil
			}
			if m.phase == phaseSpace {
				m.space = m.cursor
				m.phase = phasePage
				m.cursor = 0
				return m, nil
			}

			doc := m.spaces[m.space].Documents[m.cursor]
			id := doc.Identity()
			if m.protected(id) {
				return m, nil
			}
			m.result = PagePickerResult{Action: PagePickerActionOpen, Identity: id}
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m PagePickerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	if m.phase == phaseSpace {
		b.WriteString(pagePickerStyles.Title.Render("Wiki - Select Space"))
	} else {
		b.WriteString(pagePickerStyles.Title.Render("Wiki - Select Page"))
	}
	b.WriteString("\n\n")

	if m.phase == phasePage {
		label := pagePickerStyles.Highlight.Render(m.spaces[m.space].Name)
		b.WriteString(fmt.Sprintf("  Space: %s\n\n", label))
	}

	for i, line := range m.lines() {
		disabled := strings.HasSuffix(line, protectedSuffix)
		switch {
		case i == m.cursor && !disabled:
			line = pagePickerStyles.Selected.Render("> " + line)
		case i == m.cursor:
			line = pagePickerStyles.Item.Render("> " + line)
		case disabled:
			line = pagePickerStyles.Disabled.Render("  " + line)
		default:
			line = pagePickerStyles.Item.Render("  " + line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.items() == 0 {
		b.WriteString(pagePickerStyles.Disabled.Render("(empty)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	status := "Select the space to browse"
	if m.phase == phasePage {
		status = "Select the page to open"
	}
	b.WriteString(pagePickerStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}

	return b.String()
}

const protectedSuffix = " (protected)"

func (m PagePickerModel) lines() []string {
	width := m.width - 6
	if width <= 0 {
		width = 72
	}
	var out []string
	if m.phase == phaseSpace {
		for _, sp := range m.spaces {
			out = append(out, truncateText(fmt.Sprintf("%s (%d)", sp.Name, len(sp.Documents)), width))
		}
		return out
	}
	for _, doc := range m.spaces[m.space].Documents {
		line := truncateText(doc.Name, width)
		if m.protected(doc.Identity()) {
			line += protectedSuffix
		}
		out = append(out, line)
	}
	return out
}

func (m PagePickerModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"enter select",
	}
	if m.phase == phasePage {
		keys = append(keys, "esc back")
	}
	keys = append(keys, "? help", "q quit")
	return pagePickerStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PagePickerModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down

Actions:
  Enter    Open space or page
  Esc      Go back (when selecting a page)

General:
  ?        Toggle full help
  q        Quit`
	return pagePickerStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m PagePickerModel) Result() PagePickerResult {
	return m.result
}

// RunPagePicker runs the interactive page picker and returns the result.
func RunPagePicker(spaces []model.Space, protected func(model.Identity) bool) (PagePickerResult, error) {
	finalModel, err := Run(NewPagePickerModel(spaces, protected))
	if err != nil {
		return PagePickerResult{}, err
	}
	if m, ok := finalModel.(PagePickerModel); ok {
		return m.Result(), nil
	}
	return PagePickerResult{}, nil
}
