package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/config"
	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/lua"
	"github.com/samaelod/netprobe/suite"
	"github.com/samaelod/netprobe/types"
)

func New(version string) Model {
	cfg, err := config.LoadDefault()
	if err != nil {
		err = fmt.Errorf("failed to load config: %w", err)
	}

	profile, perr := loadOrCreateProfile(cfg.Profile)
	lines := profile.Globals.LogLines
	if perr != nil {
		err = errors.Join(err, perr)
		lines = cfg.LogLines
	}

	cfgs, cerr := profile.EndpointConfigs()
	if cerr != nil {
		err = errors.Join(err, cerr)
	}

	e := engine.NewEngine(cfgs,
		engine.WithTimeout(millis(profile.Globals.Timeout)),
		engine.WithLogs(
			filepath.Join(cfg.LogsDir, "received.log"),
			filepath.Join(cfg.LogsDir, "activity.log"),
			lines,
		),
	)

	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 4096

	endpoints := list.New(nil, endpointsDelegate{}, 0, 0)
	endpoints.SetShowTitle(false)
	endpoints.SetShowHelp(false)
	endpoints.SetShowStatusBar(false)
	endpoints.SetFilteringEnabled(false)
	endpoints.SetShowPagination(false)

	m := Model{
		screen:      screenDashboard,
		err:         err,
		cfg:         cfg,
		profile:     profile,
		profilePath: cfg.Profile,
		mode:        types.ParseMode(profile.Globals.Mode),
		engine:      e,
		ctx:         ctx,
		cancel:      cancel,
		endpoints:   endpoints,
		received:    viewport.New(10, 10),
		activity:    viewport.New(10, 10),
		input:       in,
		progress:    progress.New(progress.WithSolidFill(string(colorPrimary)), progress.WithoutPercentage()),
		fileBrowser: NewFileBrowser(suiteTypes, cfg.SuitesDir),
		percent:     new(atomic.Int64),
		version:     version,
	}
	m.runner = m.newRunner()
	m.setPlaceholder()
	m.refresh()
	return m
}

// loadOrCreateProfile reads the profile at path, writing the default
// profile there first when it does not exist yet.
func loadOrCreateProfile(path string) (*types.Profile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		p := types.DefaultProfile()
		if err := lua.SaveProfile(path, p); err != nil {
			logrus.WithField("path", path).WithError(err).Warn("Failed to write default profile")
		}
		return p, nil
	}

	p, err := lua.ReadProfile(path)
	if err != nil {
		return types.DefaultProfile(), fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func (m Model) newRunner() *suite.Runner {
	r := suite.NewRunner(m.engine,
		millis(m.profile.Globals.Delay),
		millis(m.profile.Globals.Settle))
	percent := m.percent
	r.Progress = func(p int) { percent.Store(int64(p)) }
	return r
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(startCmd(m.ctx, m.engine), tick())
}

func Run(version string) error {
	m := New(version)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.shutdown()
	} else {
		m.shutdown()
	}
	return err
}

// shutdown cancels in-flight operations and releases every socket.
func (m Model) shutdown() {
	m.cancel()
	m.engine.Close()
}
