package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogLines      = 1000
	defaultBatchSize     = 10
	defaultFlushInterval = 100 * time.Millisecond
)

// Logger is a fixed-capacity line buffer with an optional file sink. The
// engine keeps one for received messages and one for its own activity.
type Logger struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	head     int
	count    int
	seq      uint64

	filePath string
	file     *os.File
	ch       chan string
	closed   bool
}

func NewLogger(filePath string, capacity int) *Logger {
	if capacity <= 0 {
		capacity = defaultLogLines
	}

	l := &Logger{
		lines:    make([]string, capacity),
		capacity: capacity,
		filePath: filePath,
		ch:       make(chan string, 100),
	}

	if err := l.openFile(); err != nil || l.file == nil {
		return l
	}

	go l.writer()

	return l
}

func (l *Logger) openFile() error {
	if l.filePath == "" {
		return nil
	}

	if dir := filepath.Dir(l.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

func (l *Logger) Write(msg string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.lines[l.head] = msg
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
	l.seq++

	if l.file == nil {
		return
	}
	select {
	case l.ch <- msg:
	default:
	}
}

// Lines returns the buffered lines, oldest first.
func (l *Logger) Lines() []string {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if l.count >= l.capacity {
		start = l.head
	}

	out := make([]string, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.lines[(start+i)%l.capacity])
	}
	return out
}

func (l *Logger) ReadAll() string {
	lines := l.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Seq counts every Write since creation. Reset does not rewind it, so a
// changed value always means new lines arrived.
func (l *Logger) Seq() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Reset drops the buffered lines. Lines already handed to the file sink
// are kept on disk.
func (l *Logger) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		l.lines[i] = ""
	}
	l.head = 0
	l.count = 0
}

func (l *Logger) writer() {
	batch := make([]string, 0, defaultBatchSize)
	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 || l.file == nil {
			return
		}

		for _, msg := range batch {
			l.file.WriteString(msg + "\n")
		}
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-l.ch:
			if !ok {
				flush()
				l.file.Close()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= defaultBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	close(l.ch)
}
