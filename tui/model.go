package tui

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/samaelod/netprobe/config"
	"github.com/samaelod/netprobe/engine"
	"github.com/samaelod/netprobe/suite"
	"github.com/samaelod/netprobe/types"
)

type screen int

const (
	screenDashboard screen = iota
	screenSuitePicker
)

type focus int

const (
	focusEndpoints focus = iota
	focusReceived
	focusActivity
	focusInput
)

var suiteTypes = []string{".txt", ".suite", ".lua", ".pcap", ".pcapng", ".cap"}

// Picking one of these also saves the converted suite to the recent dir.
var captureTypes = []string{".pcap", ".pcapng", ".cap"}

type Model struct {
	screen screen
	focus  focus
	err    error

	cfg         *config.Config
	profile     *types.Profile
	profilePath string
	mode        types.Mode

	engine *engine.Engine
	runner *suite.Runner
	ctx    context.Context
	cancel context.CancelFunc

	endpoints list.Model
	received  viewport.Model
	activity  viewport.Model
	input     textinput.Model
	progress  progress.Model

	// fileBrowser for selecting test suites
	fileBrowser FileBrowser

	suitePath  string
	testOutput []string
	running    bool
	percent    *atomic.Int64

	width   int
	height  int
	layout  layout
	version string
}

// layout holds the outer sizes of the dashboard panels.
type layout struct {
	innerWidth   int
	innerHeight  int
	leftWidth    int
	rightWidth   int
	topHeight    int
	endpointsH   int
	suiteH       int
	receivedH    int
	activityH    int
	tooSmall     bool
	pickerWidth  int
	pickerHeight int
}

const (
	minWindowWidth  = 80
	minWindowHeight = 24
	maxListWidth    = 48
	minListWidth    = 34
	footerHeight    = 3
	inputHeight     = 3
)
