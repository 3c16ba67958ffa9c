package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/netprobe/suite"
)

// Captures larger than this are not parsed for the preview.
const maxPreviewCapture = 8 << 20

// FileBrowser lists one directory at a time and previews the suite under
// the cursor.
type FileBrowser struct {
	List           list.Model
	CurrentDir     string
	Selected       string
	PreviewContent string
	Height         int
	Width          int
	Err            error
	AllowedTypes   []string
}

type fileItem struct {
	name  string
	path  string
	isDir bool
	size  int64
}

func (i fileItem) Title() string {
	if i.isDir {
		return i.name + "/"
	}
	return i.name
}
func (i fileItem) Description() string {
	if i.isDir {
		return "Directory"
	}
	return fmt.Sprintf("File • %d bytes", i.size)
}
func (i fileItem) FilterValue() string { return i.name }

// hasExt reports whether name ends in one of exts, ignoring case.
func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

type browserDelegate struct {
	allowedTypes []string
}

func (d browserDelegate) Height() int                               { return 1 }
func (d browserDelegate) Spacing() int                              { return 0 }
func (d browserDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d browserDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(fileItem)
	if !ok {
		return
	}

	if index == m.Index() {
		fmt.Fprint(w, styleSelected.Render("> "+i.Title()))
		return
	}

	style := lipgloss.NewStyle().Foreground(colorSubtext).Faint(true)
	switch {
	case i.isDir:
		style = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	case hasExt(i.name, d.allowedTypes):
		style = lipgloss.NewStyle().Foreground(colorPrimary)
	}
	fmt.Fprint(w, style.Render("  "+i.Title()))
}

// NewFileBrowser opens dir, or the working directory when dir cannot be
// listed.
func NewFileBrowser(allowedTypes []string, dir string) FileBrowser {
	l := list.New(nil, browserDelegate{allowedTypes: allowedTypes}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	fb := FileBrowser{List: l, AllowedTypes: allowedTypes}

	if abs, err := filepath.Abs(dir); err == nil && dir != "" {
		fb.CurrentDir = abs
		fb.refreshDir()
	}
	if fb.CurrentDir == "" || fb.Err != nil {
		fb.CurrentDir, _ = os.Getwd()
		fb.Err = nil
		fb.refreshDir()
	}
	return fb
}

func (fb *FileBrowser) refreshDir() {
	entries, err := os.ReadDir(fb.CurrentDir)
	if err != nil {
		fb.Err = err
		return
	}

	// Dirs first, then files
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var items []list.Item
	if parent := filepath.Dir(fb.CurrentDir); parent != fb.CurrentDir {
		items = append(items, fileItem{name: "..", path: parent, isDir: true})
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, fileItem{
			name:  e.Name(),
			path:  filepath.Join(fb.CurrentDir, e.Name()),
			isDir: e.IsDir(),
			size:  info.Size(),
		})
	}

	fb.List.SetItems(items)
	fb.updatePreview()
}

func (fb *FileBrowser) HasValidFilesInDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && hasExt(e.Name(), fb.AllowedTypes) {
			return true
		}
	}
	return false
}

func (fb *FileBrowser) SelectedHasValidExtension() bool {
	return fb.Selected != "" && hasExt(fb.Selected, fb.AllowedTypes)
}

func (fb *FileBrowser) updatePreview() {
	fi, ok := fb.List.SelectedItem().(fileItem)
	if !ok {
		fb.PreviewContent = ""
		return
	}

	if fi.isDir {
		entries, _ := os.ReadDir(fi.path)
		fb.PreviewContent = fmt.Sprintf("Directory: %s\n\nItems: %d", fi.name, len(entries))
		return
	}

	fb.Selected = fi.path
	if !hasExt(fi.name, fb.AllowedTypes) {
		fb.PreviewContent = "File type not supported."
		return
	}

	var preview string
	if hasExt(fi.name, captureTypes) {
		preview = fmt.Sprintf("Capture file\nSize: %d bytes\n", fi.size)
		if fi.size <= maxPreviewCapture {
			preview += "\n" + scriptSummary(fi.path)
		}
	} else if content, err := os.ReadFile(fi.path); err != nil {
		preview = "Error reading file"
	} else {
		preview = scriptSummary(fi.path) + "\n\n" + string(content)
	}

	maxLines := fb.Height
	if maxLines <= 0 {
		maxLines = 10
	}
	if lines := strings.Split(preview, "\n"); len(lines) > maxLines {
		preview = strings.Join(lines[:maxLines], "\n") + "\n... (truncated)"
	}
	fb.PreviewContent = preview
}

// scriptSummary loads the suite the way a run would and reports its size.
func scriptSummary(path string) string {
	script, err := suite.Load(path)
	if err != nil {
		return "Cannot load suite: " + err.Error()
	}
	return fmt.Sprintf("%d lines to send, %d expected", len(script.Sends), len(script.Expects))
}

func (fb *FileBrowser) enter(dir string) {
	fb.CurrentDir = dir
	fb.refreshDir()
	fb.List.ResetSelected()
	fb.updatePreview()
}

func (fb FileBrowser) Update(msg tea.Msg) (FileBrowser, tea.Cmd) {
	var cmd tea.Cmd
	fb.List, cmd = fb.List.Update(msg)
	fb.updatePreview()

	if msg, ok := msg.(tea.KeyMsg); ok && fb.List.FilterState() != list.Filtering {
		switch msg.String() {
		case "enter":
			// Files are picked up by the parent through Selected
			if fi, ok := fb.List.SelectedItem().(fileItem); ok && fi.isDir {
				fb.enter(fi.path)
			}
		case "backspace", "left":
			if parent := filepath.Dir(fb.CurrentDir); parent != fb.CurrentDir {
				fb.enter(parent)
			}
		}
	}

	return fb, cmd
}

func (fb *FileBrowser) SetSize(width, height int) {
	fb.Width = width
	fb.Height = height
	fb.List.SetSize(width, height)
}

func (fb FileBrowser) View() string {
	return fb.List.View()
}
