package lua

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/netprobe/config"
	"github.com/samaelod/netprobe/types"
)

// SaveToRecent stores a copy of the profile in the 'recent' directory.
// It uses the original filename as a base and appends an incrementing number.
// Returns the path to the newly created file.
func SaveToRecent(p *types.Profile, originalPath string) (string, error) {
	appConfig, err := config.LoadDefault()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	recentDir := appConfig.RecentDir
	if recentDir == "" {
		recentDir = "recent"
	}

	if err := os.MkdirAll(recentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recent directory: %w", err)
	}

	baseName := filepath.Base(originalPath)
	if originalPath == "" {
		baseName = "profile.lua"
	}
	newPath := RecentPath(recentDir, baseName, ".lua")

	f, err := os.Create(newPath)
	if err != nil {
		return "", fmt.Errorf("failed to create profile file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(originalPath, ".lua") {
		// Copy Lua sources verbatim to keep comments and structure
		src, err := os.Open(originalPath)
		if err != nil {
			return "", fmt.Errorf("failed to open source lua file: %w", err)
		}
		defer src.Close()

		if _, err := io.Copy(f, src); err != nil {
			return "", fmt.Errorf("failed to copy lua content: %w", err)
		}
	} else {
		if err := WriteProfile(f, p); err != nil {
			return "", fmt.Errorf("failed to write profile to lua: %w", err)
		}
	}

	return newPath, nil
}

// RecentPath returns the first free name_N<ext> in dir, where name is
// baseName without its extension.
func RecentPath(dir, baseName, ext string) string {
	name := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	// pattern: name_1.lua, name_2.lua, etc.
	for counter := 1; ; counter++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, counter, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// SaveProfile overwrites path with p.
func SaveProfile(path string, p *types.Profile) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create profile file: %w", err)
	}
	defer f.Close()
	return WriteProfile(f, p)
}
