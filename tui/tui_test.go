package tui

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netprobe/config"
	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/suite"
	"github.com/samaelod/netprobe/types"
)

func TestHasExt(t *testing.T) {
	assert.True(t, hasExt("ping.TXT", suiteTypes))
	assert.True(t, hasExt("/tmp/capture.pcapng", suiteTypes))
	assert.False(t, hasExt("notes.md", suiteTypes))
	assert.False(t, hasExt("Makefile", suiteTypes))
}

func TestEndpointItem(t *testing.T) {
	tests := []struct {
		name      string
		status    engine.EndpointStatus
		wantLabel string
		wantAddr  string
		wantFlags string
	}{
		{
			name: "client",
			status: engine.EndpointStatus{Role: types.RoleTCPClient, Config: types.EndpointConfig{
				RemoteHost: "127.0.0.1", Port: 5000, SendEnabled: true, ReceiveEnabled: true}},
			wantLabel: "TCP Client", wantAddr: "127.0.0.1:5000", wantFlags: "SR",
		},
		{
			name:      "listener",
			status:    engine.EndpointStatus{Role: types.RoleTCPServerListener, Config: types.EndpointConfig{Port: 5001, ReceiveEnabled: true}},
			wantLabel: "TCP Server", wantAddr: ":5001", wantFlags: "-R",
		},
		{
			name:      "idle peer",
			status:    engine.EndpointStatus{Role: types.RoleTCPServerPeer},
			wantLabel: "TCP Peer", wantAddr: "-", wantFlags: "--",
		},
		{
			name:      "connected peer",
			status:    engine.EndpointStatus{Role: types.RoleTCPServerPeer, PeerAddr: "10.0.0.5:41000"},
			wantLabel: "TCP Peer", wantAddr: "10.0.0.5:41000", wantFlags: "--",
		},
		{
			name:      "udp server",
			status:    engine.EndpointStatus{Role: types.RoleUDPServer, Config: types.EndpointConfig{Port: 5003, SendEnabled: true}},
			wantLabel: "UDP Server", wantAddr: ":5003", wantFlags: "S-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := endpointItem(tt.status)
			assert.Equal(t, tt.wantLabel, item.label())
			assert.Equal(t, tt.wantAddr, item.address())
			assert.Equal(t, tt.wantFlags, item.flags())
		})
	}
}

func TestFileBrowserPreview(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ping.txt"), []byte("PING\nEND TESTS\nPONG\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "more"), 0755))

	fb := NewFileBrowser(suiteTypes, dir)
	fb.SetSize(30, 20)
	require.NoError(t, fb.Err)
	assert.True(t, fb.HasValidFilesInDir(dir))

	var names []string
	for _, it := range fb.List.Items() {
		names = append(names, it.(fileItem).name)
	}
	assert.Equal(t, []string{"..", "more", "notes.md", "ping.txt"}, names)

	fb.List.Select(3)
	fb.updatePreview()
	assert.True(t, fb.SelectedHasValidExtension())
	assert.Contains(t, fb.PreviewContent, "1 lines to send, 1 expected")

	fb.List.Select(2)
	fb.updatePreview()
	assert.False(t, fb.SelectedHasValidExtension())
	assert.Equal(t, "File type not supported.", fb.PreviewContent)
}

func TestFileBrowserFallsBackToWorkingDir(t *testing.T) {
	fb := NewFileBrowser(suiteTypes, filepath.Join(t.TempDir(), "missing"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, fb.CurrentDir)
	assert.NoError(t, fb.Err)
}

// newTestModel builds a dashboard without touching the working directory.
func newTestModel(t *testing.T) Model {
	t.Helper()
	e := engine.NewEngine(nil, engine.WithTimeout(time.Second))
	t.Cleanup(e.Close)

	m := Model{
		cfg:       &config.Config{RecentDir: filepath.Join(t.TempDir(), "recent")},
		profile:   types.DefaultProfile(),
		engine:    e,
		ctx:       context.Background(),
		cancel:    func() {},
		endpoints: list.New(nil, endpointsDelegate{}, 0, 0),
		received:  viewport.New(10, 10),
		activity:  viewport.New(10, 10),
		input:     textinput.New(),
		percent:   new(atomic.Int64),
	}
	m.runner = m.newRunner()
	return m
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestRunUnreadableSuiteKeepsResults(t *testing.T) {
	m := newTestModel(t)
	m.testOutput = []string{suite.PassedLine}
	m.suitePath = filepath.Join(t.TempDir(), "gone.txt")

	next, cmd := m.Update(runeKey('t'))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.running)
	assert.Equal(t, []string{suite.PassedLine}, m.testOutput)

	done := cmd()
	require.IsType(t, suiteDoneMsg{}, done)
	next, _ = m.Update(done)
	m = next.(Model)

	assert.False(t, m.running)
	assert.Equal(t, []string{suite.PassedLine}, m.testOutput)
	assert.Equal(t, suite.OpenErrorLine, m.engine.Status.String())
}

func pickerModel(t *testing.T, files map[string]string) Model {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}

	m := newTestModel(t)
	m.screen = screenSuitePicker
	m.fileBrowser = NewFileBrowser(suiteTypes, dir)
	m.fileBrowser.SetSize(30, 20)
	m.fileBrowser.List.Select(1)
	m.fileBrowser.updatePreview()
	return m
}

func TestPickerSavesSuiteCopy(t *testing.T) {
	m := pickerModel(t, map[string]string{"ping.txt": "PING\nEND TESTS\nPONG\n"})

	next, cmd := m.Update(runeKey('w'))
	m = next.(Model)
	require.NotNil(t, cmd)

	saved := cmd()
	require.IsType(t, suiteSavedMsg{}, saved)
	path := saved.(suiteSavedMsg).path
	assert.Equal(t, filepath.Join(m.cfg.RecentDir, "ping_1.txt"), path)

	script, err := suite.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, script.Sends)
	assert.Equal(t, []string{"PONG"}, script.Expects)

	next, _ = m.Update(saved)
	m = next.(Model)
	assert.Equal(t, "Saved suite to "+path+"! ", m.engine.Status.String())
}

func TestPickingCaptureConvertsIt(t *testing.T) {
	m := pickerModel(t, map[string]string{"bad.pcap": "not a capture"})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
	assert.Equal(t, "bad.pcap", filepath.Base(m.suitePath))
	require.NotNil(t, cmd)
	assert.IsType(t, errMsg{}, cmd())
}

func TestPickingTextSuiteSavesNothing(t *testing.T) {
	m := pickerModel(t, map[string]string{"ping.txt": "PING\n"})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
	assert.Nil(t, cmd)
}
