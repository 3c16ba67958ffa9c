// Package suite loads test suites and replays them against the engine,
// comparing what came back with what the suite expects.
package suite

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/netprobe/lua"
	"github.com/samaelod/netprobe/pcapreader"
	"github.com/samaelod/netprobe/types"
)

// Sentinel separates the lines to send from the expected responses.
const Sentinel = "END TESTS"

const maxLineSize = 1 << 20

// ParseScript reads a plain text suite. Every line before the first line
// equal to Sentinel is sent; every line after it is expected back. A file
// without the sentinel is all send lines and expects nothing.
func ParseScript(r io.Reader) (*types.Script, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)

	script := &types.Script{}
	inSends := true
	for sc.Scan() {
		line := sc.Text()
		if inSends && line == Sentinel {
			inSends = false
			continue
		}
		if inSends {
			script.Sends = append(script.Sends, line)
		} else {
			script.Expects = append(script.Expects, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return script, nil
}

// Load reads a suite by extension: .lua suites, packet captures, or the
// plain text format.
func Load(path string) (*types.Script, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return lua.ReadSuite(path)
	case ".pcap", ".pcapng", ".cap":
		return pcapreader.ReadSuite(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	script, err := ParseScript(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return script, nil
}

// Write renders script in the plain text format.
func Write(w io.Writer, script *types.Script) error {
	bw := bufio.NewWriter(w)
	for _, line := range script.Sends {
		fmt.Fprintln(bw, line)
	}
	fmt.Fprintln(bw, Sentinel)
	for _, line := range script.Expects {
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}

// SaveCopy writes script into dir under a fresh name derived from srcPath.
// Raw suites and suites with multi-line entries are written as Lua, which
// keeps every byte; the rest use the plain text format.
func SaveCopy(script *types.Script, srcPath, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recent directory: %w", err)
	}

	write, ext := Write, ".txt"
	if needsLua(script) {
		write, ext = lua.WriteSuite, ".lua"
	}

	path := lua.RecentPath(dir, filepath.Base(srcPath), ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create suite file: %w", err)
	}
	defer f.Close()

	if err := write(f, script); err != nil {
		return "", fmt.Errorf("failed to write suite: %w", err)
	}
	return path, nil
}

func needsLua(script *types.Script) bool {
	if script.Raw {
		return true
	}
	for _, lines := range [][]string{script.Sends, script.Expects} {
		for _, l := range lines {
			if strings.ContainsAny(l, "\r\n") || l == Sentinel {
				return true
			}
		}
	}
	return false
}
