package lua

import (
	"fmt"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/samaelod/netprobe/types"
)

// doTable runs a Lua file and returns the table it evaluates to.
func doTable(L *lua.LState, path string) (*lua.LTable, error) {
	if err := L.DoFile(path); err != nil {
		return nil, err
	}

	lv := L.Get(-1)
	table, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua file did not return a table")
	}
	return table, nil
}

// ReadProfile loads an endpoint profile. Missing globals take the defaults
// of types.DefaultProfile.
func ReadProfile(path string) (*types.Profile, error) {
	L := lua.NewState()
	defer L.Close()

	table, err := doTable(L, path)
	if err != nil {
		return nil, err
	}

	var p types.Profile

	// Map Lua table → Go struct
	if err := gluamapper.Map(table, &p); err != nil {
		return nil, err
	}

	applyDefaults(&p)

	if err := ValidateProfile(&p); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return &p, nil
}

func applyDefaults(p *types.Profile) {
	def := types.DefaultProfile().Globals
	if p.Globals.Timeout <= 0 {
		p.Globals.Timeout = def.Timeout
	}
	if p.Globals.Delay <= 0 {
		p.Globals.Delay = def.Delay
	}
	if p.Globals.Settle < 0 {
		p.Globals.Settle = def.Settle
	}
	if p.Globals.Mode == "" {
		p.Globals.Mode = def.Mode
	}
	if p.Globals.LogLines <= 0 {
		p.Globals.LogLines = def.LogLines
	}
}

func ValidateProfile(p *types.Profile) error {
	if p.Globals.Mode != "text" && p.Globals.Mode != "hex" {
		return fmt.Errorf("globals: unknown mode %q", p.Globals.Mode)
	}

	seen := make(map[string]bool)
	for i, ep := range p.Endpoints {
		if _, err := types.ParseRole(ep.Kind); err != nil {
			return fmt.Errorf("endpoint %d: %w", i, err)
		}
		if seen[ep.Kind] {
			return fmt.Errorf("endpoint %d: duplicate kind %q", i, ep.Kind)
		}
		seen[ep.Kind] = true
		if ep.Port < 0 || ep.Port > 65535 {
			return fmt.Errorf("endpoint %d: invalid port %d", i, ep.Port)
		}
	}

	return nil
}

// ReadSuite loads a Lua test suite returning { sends = {...}, expects = {...} }.
func ReadSuite(path string) (*types.Script, error) {
	L := lua.NewState()
	defer L.Close()

	table, err := doTable(L, path)
	if err != nil {
		return nil, err
	}

	var script types.Script
	if err := gluamapper.Map(table, &script); err != nil {
		return nil, err
	}
	return &script, nil
}
