package tui

import (
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/suite"
	"github.com/samaelod/netprobe/types"
)

type endpointItem engine.EndpointStatus

func (e endpointItem) Title() string       { return e.label() }
func (e endpointItem) Description() string { return "" }
func (e endpointItem) FilterValue() string { return e.label() }

func (e endpointItem) label() string {
	switch e.Role {
	case types.RoleTCPServerListener:
		return "TCP Server"
	case types.RoleTCPServerPeer:
		return "TCP Peer"
	}
	return e.Role.String()
}

func (e endpointItem) address() string {
	switch e.Role {
	case types.RoleTCPClient, types.RoleUDPClient:
		return net.JoinHostPort(e.Config.RemoteHost, strconv.Itoa(e.Config.Port))
	case types.RoleTCPServerPeer:
		if e.PeerAddr == "" {
			return "-"
		}
		return e.PeerAddr
	}
	return ":" + strconv.Itoa(e.Config.Port)
}

func (e endpointItem) flags() string {
	s, r := "-", "-"
	if e.Config.SendEnabled {
		s = "S"
	}
	if e.Config.ReceiveEnabled {
		r = "R"
	}
	return s + r
}

type endpointsDelegate struct{}

func (d endpointsDelegate) Height() int                               { return 1 }
func (d endpointsDelegate) Spacing() int                              { return 0 }
func (d endpointsDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d endpointsDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(endpointItem)
	if !ok {
		return
	}

	str := fmt.Sprintf("%-10s %-21s %s ", i.label(), i.address(), i.flags())
	state := lipgloss.NewStyle().Foreground(stateColor(i.State)).Render(i.State.String())

	if index == m.Index() {
		fmt.Fprint(w, styleSelected.Render("> "+str)+state)
	} else {
		fmt.Fprint(w, lipgloss.NewStyle().Foreground(colorText).Render("  "+str)+state)
	}
}

func renderScrollbar(vp viewport.Model, height int) string {
	total := vp.TotalLineCount()
	visible := vp.VisibleLineCount()

	if total <= visible {
		return ""
	}

	trackHeight := height
	if trackHeight < 1 {
		trackHeight = visible
	}

	scrollPercent := vp.ScrollPercent()

	thumbPos := int(float64(trackHeight-1) * scrollPercent)
	if thumbPos < 0 {
		thumbPos = 0
	}
	if thumbPos > trackHeight-1 {
		thumbPos = trackHeight - 1
	}

	var sb strings.Builder
	for i := 0; i < trackHeight; i++ {
		if i == thumbPos {
			sb.WriteString(scrollbarThumb.Render("█"))
		} else {
			sb.WriteString(scrollbarTrack.Render("│"))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// setLogContent replaces the viewport content, following the tail when the
// view was already at the bottom.
func setLogContent(vp *viewport.Model, lines []string) {
	follow := vp.AtBottom()
	vp.SetContent(strings.Join(lines, "\n"))
	if follow {
		vp.GotoBottom()
	}
}

// resize recomputes the panel sizes from the window size and focus.
func (m *Model) resize() {
	l := layout{
		innerWidth:  m.width - 4,
		innerHeight: m.height - 4,
	}
	if l.innerWidth < minWindowWidth || l.innerHeight < minWindowHeight {
		l.tooSmall = true
		m.layout = l
		return
	}

	l.leftWidth = l.innerWidth / 3
	if l.leftWidth > maxListWidth {
		l.leftWidth = maxListWidth
	}
	if l.leftWidth < minListWidth {
		l.leftWidth = minListWidth
	}
	l.rightWidth = l.innerWidth - l.leftWidth

	// title, input panel, status line, footer
	l.topHeight = l.innerHeight - 1 - inputHeight - 1 - footerHeight

	l.endpointsH = len(types.Roles) + 4
	l.suiteH = l.topHeight - l.endpointsH

	share := 60
	switch m.focus {
	case focusReceived:
		share = 70
	case focusActivity:
		share = 30
	}
	l.receivedH = l.topHeight * share / 100
	l.activityH = l.topHeight - l.receivedH

	l.pickerWidth = l.innerWidth/3 - 4
	l.pickerHeight = l.innerHeight - 5

	m.layout = l

	m.endpoints.SetSize(l.leftWidth-4, len(types.Roles))
	m.progress.Width = l.leftWidth - 4

	m.received.Width = l.rightWidth - 5 // padding, border and scrollbar
	m.received.Height = max(l.receivedH-4, 1)
	m.activity.Width = l.rightWidth - 5
	m.activity.Height = max(l.activityH-4, 1)

	m.input.Width = l.innerWidth - 14
	m.fileBrowser.SetSize(l.pickerWidth, l.pickerHeight)
}

// panel renders a titled, bordered box with the given outer size.
func panel(title, body string, width, height int, border lipgloss.Color) string {
	content := styleTitle.MarginBottom(1).Render(title) + "\n" + body
	return stylePanelTitled.
		BorderForeground(border).
		Width(width - 2).
		Height(height - 2).
		MaxHeight(height).
		Render(content)
}

func (m Model) borderFor(f focus) lipgloss.Color {
	if m.focus == f {
		return colorSecondary
	}
	return colorSubtext
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.layout.tooSmall {
		return styleScreenTooSmall.
			Width(m.width).
			Height(m.height).
			Render("Terminal window is too small.\nPlease resize.")
	}

	var content string
	switch m.screen {
	case screenSuitePicker:
		content = m.viewPicker()
	default:
		content = m.viewDashboard()
	}

	// Apply global window style
	return styleWindow.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m Model) viewDashboard() string {
	l := m.layout
	appTitle := styleAppTitle.Width(l.innerWidth).Render("NETPROBE " + m.version)

	endpointsPanel := panel("Endpoints", m.endpoints.View(), l.leftWidth, l.endpointsH, m.borderFor(focusEndpoints))
	suitePanel := panel("Test Suite", m.renderSuite(l.leftWidth-4, l.suiteH-4), l.leftWidth, l.suiteH, colorSubtext)
	leftColumn := lipgloss.JoinVertical(lipgloss.Top, endpointsPanel, suitePanel)

	receivedPanel := panel("Received", m.renderLog(m.received), l.rightWidth, l.receivedH, m.borderFor(focusReceived))
	activityPanel := panel("Activity", m.renderLog(m.activity), l.rightWidth, l.activityH, m.borderFor(focusActivity))
	rightColumn := lipgloss.JoinVertical(lipgloss.Top, receivedPanel, activityPanel)

	topArea := lipgloss.JoinHorizontal(lipgloss.Top, leftColumn, rightColumn)

	modeTag := styleModeTag.Render(strings.ToUpper(m.mode.String()))
	inputView := stylePanelTitled.
		BorderForeground(m.borderFor(focusInput)).
		Width(l.innerWidth - 2).
		Render(lipgloss.JoinHorizontal(lipgloss.Center, modeTag, " ", m.input.View()))

	status := m.engine.Status.String()
	statusLine := styleStatus.Render(status)
	if m.err != nil {
		statusLine = lipgloss.JoinHorizontal(lipgloss.Top, statusLine, styleFailed.Render("Error: "+m.err.Error()))
	}
	statusLine = lipgloss.NewStyle().Width(l.innerWidth).MaxHeight(1).Render(statusLine)

	return lipgloss.JoinVertical(lipgloss.Top,
		appTitle,
		topArea,
		inputView,
		statusLine,
		m.renderFooter(),
	)
}

func (m Model) renderLog(vp viewport.Model) string {
	// Render viewport and scrollbar side by side
	scrollbar := renderScrollbar(vp, vp.Height)
	scrollbarCol := scrollbarTrack.Width(1).Render(scrollbar)
	return lipgloss.JoinHorizontal(lipgloss.Top, vp.View(), scrollbarCol)
}

func (m Model) renderSuite(width, height int) string {
	valueMaxWidth := width - 9
	if valueMaxWidth < 5 {
		valueMaxWidth = 5
	}

	// Helper to render label+value rows with truncation
	row := func(label, value string) string {
		if len(value) > valueMaxWidth {
			value = value[:valueMaxWidth-1] + "…"
		}
		return lipgloss.JoinHorizontal(lipgloss.Left,
			styleLabel.Render(label),
			styleValue.Render(value),
		)
	}

	name := "none"
	if m.suitePath != "" {
		name = filepath.Base(m.suitePath)
	}
	state := "idle"
	if m.running {
		state = "running"
	}

	lines := []string{
		row("Suite:", name),
		row("State:", state),
		m.progress.ViewAs(float64(m.percent.Load()) / 100),
		"",
	}

	avail := height - len(lines)
	for i, out := range m.testOutput {
		if i >= avail-1 && len(m.testOutput) > avail {
			lines = append(lines, styleSubtext.Render(fmt.Sprintf("... %d more", len(m.testOutput)-i)))
			break
		}
		if len(out) > width {
			out = out[:width-1] + "…"
		}
		if out == suite.PassedLine {
			lines = append(lines, stylePassed.Render(out))
		} else {
			lines = append(lines, styleFailed.Render(out))
		}
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	keyStyle := lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(colorSubtext)
	sep := descStyle.Render(" • ")

	hint := func(key, desc string) string {
		return keyStyle.Render(key) + descStyle.Render(" "+desc)
	}

	var hints []string
	switch m.focus {
	case focusInput:
		hints = []string{hint("enter", "send"), hint("esc", "done")}
	case focusReceived, focusActivity:
		hints = []string{hint("<tab>", "switch focus"), hint("e", "editor"), hint("g/G", "top/bottom"),
			hint("x", "clear"), hint("i", "message"), hint("t", "run"), hint("q", "quit")}
	default:
		hints = []string{hint("<tab>", "switch focus"), hint("c/d", "open/close"), hint("s/r", "send/recv"),
			hint("i", "message"), hint("m", "mode"), hint("o", "suite"), hint("t", "run"),
			hint("e", "edit"), hint("u", "reload"), hint("q", "quit")}
	}

	// Wrap footer in a thin border panel
	footerStyle := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(colorSubtext).
		Padding(0, 1)

	return footerStyle.
		Width(m.layout.innerWidth - 2).
		MaxHeight(footerHeight).
		Render(strings.Join(hints, sep))
}

func (m Model) viewPicker() string {
	l := m.layout
	appTitle := styleAppTitle.Width(l.innerWidth).Render("NETPROBE " + m.version)

	// Split View: Browser (1/3) | Preview (2/3)
	listWidth := l.innerWidth / 3
	previewWidth := l.innerWidth - listWidth
	panelHeight := l.innerHeight - 1 // -1 for title

	// Determine border colors
	browserColor := colorSecondary
	if m.fileBrowser.HasValidFilesInDir(m.fileBrowser.CurrentDir) {
		browserColor = colorSuccess
	}

	previewColor := colorSecondary
	if item, ok := m.fileBrowser.List.SelectedItem().(fileItem); ok && !item.isDir {
		if m.fileBrowser.SelectedHasValidExtension() {
			previewColor = colorSuccess
		} else {
			previewColor = colorError
		}
	}

	browserView := panel("Select Suite", m.fileBrowser.View(), listWidth, panelHeight, browserColor)

	// Truncate content to fit panel
	contentHeight := panelHeight - 5 // -2 border, -1 title, -1 margin, -1 dots
	previewLines := strings.Split(m.fileBrowser.PreviewContent, "\n")
	if contentHeight > 1 && len(previewLines) > contentHeight {
		previewLines = previewLines[:contentHeight-1]
		previewLines = append(previewLines, "...")
	}
	previewView := panel("Suite Preview (w: save copy)", strings.Join(previewLines, "\n"), previewWidth, panelHeight, previewColor)

	return lipgloss.JoinVertical(lipgloss.Top,
		appTitle,
		lipgloss.JoinHorizontal(lipgloss.Top, browserView, previewView),
	)
}
