package tui

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/lua"
	"github.com/samaelod/netprobe/suite"
	"github.com/samaelod/netprobe/types"
)

const tickInterval = 100 * time.Millisecond

type tickMsg time.Time
type opDoneMsg struct {
	op   string
	role types.Role
	err  error
}
type sendDoneMsg struct {
	result engine.SendResult
	err    error
}
type suiteDoneMsg struct {
	report *suite.Report
	err    error
}
type profileLoadedMsg struct {
	profile *types.Profile
	path    string
}
type suiteSavedMsg struct {
	src, path string
}
type errMsg struct{ err error }
type editorFinishedMsg struct{ err error }

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func startCmd(ctx context.Context, e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "start", err: e.Start(ctx)}
	}
}

// connectCmd opens the selected role: connect the client, re-arm the
// server, or bind a UDP socket.
func connectCmd(ctx context.Context, e *engine.Engine, role types.Role) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch role {
		case types.RoleTCPClient:
			err = e.Connect(ctx, role)
		case types.RoleTCPServerListener, types.RoleTCPServerPeer:
			err = e.ResetServer(ctx)
		default:
			err = e.Bind(ctx, role)
		}
		return opDoneMsg{op: "connect", role: role, err: err}
	}
}

func disconnectCmd(ctx context.Context, e *engine.Engine, role types.Role) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch role {
		case types.RoleTCPClient:
			err = e.Disconnect(ctx, role)
		case types.RoleTCPServerListener, types.RoleTCPServerPeer:
			err = e.Disconnect(ctx, types.RoleTCPServerPeer)
		default:
			err = e.Unbind(ctx, role)
		}
		return opDoneMsg{op: "disconnect", role: role, err: err}
	}
}

func sendCmd(e *engine.Engine, mode types.Mode, text string) tea.Cmd {
	return func() tea.Msg {
		res, err := e.Send(mode, text)
		return sendDoneMsg{result: res, err: err}
	}
}

func runSuiteCmd(ctx context.Context, r *suite.Runner, path string) tea.Cmd {
	return func() tea.Msg {
		report, err := r.Run(ctx, path)
		return suiteDoneMsg{report: report, err: err}
	}
}

// saveSuiteCmd loads the suite at path and saves a copy into dir.
func saveSuiteCmd(path, dir string) tea.Cmd {
	return func() tea.Msg {
		script, err := suite.Load(path)
		if err != nil {
			return errMsg{err}
		}
		saved, err := suite.SaveCopy(script, path, dir)
		if err != nil {
			return errMsg{err}
		}
		return suiteSavedMsg{src: path, path: saved}
	}
}

func loadProfileCmd(path string, saveCopy bool) tea.Cmd {
	return func() tea.Msg {
		p, err := lua.ReadProfile(path)
		if err != nil {
			return errMsg{err}
		}

		if saveCopy {
			if copyPath, err := lua.SaveToRecent(p, path); err != nil {
				logrus.WithField("path", path).WithError(err).Warn("Failed to save profile copy")
			} else {
				logrus.WithField("path", copyPath).Debug("Saved profile copy")
			}
		}

		return profileLoadedMsg{profile: p, path: path}
	}
}

func editorCommand(path string) *exec.Cmd {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "nano"
	}
	return exec.Command(editor, path)
}

func openLogsInEditor(logContent string) tea.Cmd {
	// Create temp file first
	f, err := os.CreateTemp("", "netprobe-logs-*.log")
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}

	_, err = f.WriteString(logContent)
	f.Close()
	if err != nil {
		os.Remove(f.Name())
		return func() tea.Msg { return errMsg{err} }
	}
	tempPath := f.Name()

	return tea.ExecProcess(editorCommand(tempPath), func(err error) tea.Msg {
		// Clean up temp file after editor closes
		os.Remove(tempPath)
		return nil
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.refresh()
		return m, tick()

	case opDoneMsg:
		if msg.err != nil && !engine.IsInformational(msg.err) {
			logrus.WithFields(logrus.Fields{
				"component": "tui",
				"op":        msg.op,
				"role":      msg.role.String(),
			}).WithError(msg.err).Debug("Operation failed")
		}
		m.refresh()
		return m, nil

	case sendDoneMsg:
		if msg.err == nil {
			if err := msg.result.Err(); err != nil {
				logrus.WithField("component", "tui").WithError(err).Debug("Send incomplete")
			}
		}
		m.refresh()
		return m, nil

	case suiteDoneMsg:
		m.running = false
		// A suite that could not be opened leaves the last results in place
		if msg.report != nil {
			m.testOutput = msg.report.Lines
		}
		if msg.err != nil && !errors.Is(msg.err, suite.ErrNoSuite) {
			logrus.WithField("component", "tui").WithError(msg.err).Info("Suite aborted")
		}
		m.refresh()
		return m, nil

	case suiteSavedMsg:
		logrus.WithFields(logrus.Fields{
			"component": "tui",
			"suite":     msg.src,
			"path":      msg.path,
		}).Info("Saved suite copy")
		m.engine.Status.Set("Saved suite to " + msg.path + "! ")
		return m, nil

	case profileLoadedMsg:
		m.err = nil
		m.profilePath = msg.path
		m.applyProfile(msg.profile)
		return m, nil

	case editorFinishedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		return m, loadProfileCmd(m.profilePath, true)

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	if m.screen == screenSuitePicker {
		return m.updatePicker(msg)
	}
	return m.updateDashboard(msg)
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && m.fileBrowser.List.FilterState() != list.Filtering {
		switch msg.String() {
		case "esc":
			if m.fileBrowser.List.FilterState() == list.Unfiltered {
				m.screen = screenDashboard
				return m, nil
			}
		case "w":
			if m.fileBrowser.SelectedHasValidExtension() {
				return m, saveSuiteCmd(m.fileBrowser.Selected, m.cfg.RecentDir)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.fileBrowser, cmd = m.fileBrowser.Update(msg)

	// Check if a file was confirmed (Enter key on a file item)
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		item := m.fileBrowser.List.SelectedItem()
		if item == nil {
			return m, cmd
		}
		fi, ok := item.(fileItem)
		if !ok || fi.isDir {
			return m, cmd
		}
		if !m.fileBrowser.SelectedHasValidExtension() {
			// Ignore selection of invalid file types
			return m, cmd
		}

		m.suitePath = fi.path
		m.screen = screenDashboard
		logrus.WithFields(logrus.Fields{
			"component": "tui",
			"path":      fi.path,
		}).Info("Selected test suite")
		if hasExt(fi.path, captureTypes) {
			return m, saveSuiteCmd(fi.path, m.cfg.RecentDir)
		}
		return m, nil
	}

	return m, cmd
}

func (m Model) updateDashboard(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, isKey := msg.(tea.KeyMsg)

	if m.focus == focusInput {
		if isKey {
			switch key.String() {
			case "esc":
				m.input.Blur()
				m.focus = focusEndpoints
				m.resize()
				return m, nil
			case "enter":
				return m, sendCmd(m.engine, m.mode, m.input.Value())
			}
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if isKey {
		switch key.String() {
		case "q":
			return m, tea.Quit

		case "tab":
			m.focus = (m.focus + 1) % focusInput
			m.resize()
			return m, nil

		case "shift+tab":
			m.focus = (m.focus + focusInput - 1) % focusInput
			m.resize()
			return m, nil

		case "i":
			m.focus = focusInput
			m.resize()
			return m, m.input.Focus()

		case "m":
			if m.mode == types.ModeText {
				m.mode = types.ModeHex
			} else {
				m.mode = types.ModeText
			}
			m.setPlaceholder()
			return m, nil

		case "o":
			dir := m.fileBrowser.CurrentDir
			m.fileBrowser = NewFileBrowser(suiteTypes, dir)
			m.fileBrowser.SetSize(m.layout.pickerWidth, m.layout.pickerHeight)
			m.screen = screenSuitePicker
			return m, nil

		case "t":
			if m.running {
				return m, nil
			}
			m.running = true
			return m, runSuiteCmd(m.ctx, m.runner, m.suitePath)

		case "x":
			m.engine.Recv.Reset()
			m.refresh()
			return m, nil

		case "u":
			return m, loadProfileCmd(m.profilePath, true)

		case "e":
			switch m.focus {
			case focusReceived:
				return m, openLogsInEditor(m.engine.Recv.ReadAll())
			case focusActivity:
				return m, openLogsInEditor(m.engine.Log.ReadAll())
			}
			return m, tea.ExecProcess(editorCommand(m.profilePath), func(err error) tea.Msg {
				return editorFinishedMsg{err}
			})

		case "g":
			if vp := m.focusedViewport(); vp != nil {
				vp.GotoTop()
				return m, nil
			}

		case "G":
			if vp := m.focusedViewport(); vp != nil {
				vp.GotoBottom()
				return m, nil
			}
		}

		if m.focus == focusEndpoints {
			if role, ok := m.selectedRole(); ok {
				switch key.String() {
				case "c":
					return m, connectCmd(m.ctx, m.engine, role)
				case "d":
					return m, disconnectCmd(m.ctx, m.engine, role)
				case "s":
					m.engine.Registry.Update(role, func(c *types.EndpointConfig) { c.SendEnabled = !c.SendEnabled })
					m.refresh()
					return m, nil
				case "r":
					m.engine.Registry.Update(role, func(c *types.EndpointConfig) { c.ReceiveEnabled = !c.ReceiveEnabled })
					m.refresh()
					return m, nil
				}
			}
		}
	}

	// Conditional Update based on Focus
	var cmd tea.Cmd
	switch m.focus {
	case focusEndpoints:
		m.endpoints, cmd = m.endpoints.Update(msg)
	case focusReceived:
		m.received, cmd = m.received.Update(msg)
	case focusActivity:
		m.activity, cmd = m.activity.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusedViewport() *viewport.Model {
	switch m.focus {
	case focusReceived:
		return &m.received
	case focusActivity:
		return &m.activity
	}
	return nil
}

func (m Model) selectedRole() (types.Role, bool) {
	item, ok := m.endpoints.SelectedItem().(endpointItem)
	if !ok {
		return 0, false
	}
	return item.Role, true
}

// applyProfile pushes a reloaded profile into the registry and runner.
// The confirmation timeout is fixed when the engine is created.
func (m *Model) applyProfile(p *types.Profile) {
	cfgs, err := p.EndpointConfigs()
	if err != nil {
		m.err = err
		return
	}
	for _, c := range cfgs {
		m.engine.Registry.SetConfig(c)
	}
	m.profile = p
	m.mode = types.ParseMode(p.Globals.Mode)
	m.setPlaceholder()
	if !m.running {
		m.runner = m.newRunner()
	}
	m.refresh()
}

func (m *Model) setPlaceholder() {
	if m.mode == types.ModeHex {
		m.input.Placeholder = "bytes, e.g. 48 65 6c 6c 6f 0d 0a"
	} else {
		m.input.Placeholder = "message text"
	}
}

// refresh pulls registry state and both logs into the widgets.
func (m *Model) refresh() {
	statuses := m.engine.Registry.Snapshot()
	items := make([]list.Item, 0, len(statuses))
	for _, st := range statuses {
		items = append(items, endpointItem(st))
	}
	m.endpoints.SetItems(items)

	setLogContent(&m.received, m.engine.Recv.Lines())
	setLogContent(&m.activity, m.engine.Log.Lines())
}
