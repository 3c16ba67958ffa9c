package lua

import (
	"fmt"
	"io"
	"strings"

	"github.com/samaelod/netprobe/types"
)

func WriteProfile(w io.Writer, p *types.Profile) error {
	fmt.Fprintln(w, "local config = {}")
	fmt.Fprintln(w)

	// Globals
	fmt.Fprintln(w, "-- GLOBALS ----------------------------------------")
	fmt.Fprintln(w, "config.globals = {")
	fmt.Fprintf(w, "\ttimeout = %d,\n", p.Globals.Timeout)
	fmt.Fprintf(w, "\tdelay = %d,\n", p.Globals.Delay)
	fmt.Fprintf(w, "\tsettle = %d,\n", p.Globals.Settle)
	fmt.Fprintf(w, "\tmode = %s,\n", quote(p.Globals.Mode))
	fmt.Fprintf(w, "\tlog_lines = %d,\n", p.Globals.LogLines)
	fmt.Fprintln(w, "}")
	fmt.Fprintln(w)

	// Endpoints
	fmt.Fprintln(w, "-- ENDPOINTS --------------------------------------")
	fmt.Fprintln(w, "config.endpoints = {")
	for _, ep := range p.Endpoints {
		fmt.Fprintln(w, "\t{")
		fmt.Fprintf(w, "\t\tkind = %s,\n", quote(ep.Kind))
		fmt.Fprintf(w, "\t\taddress = %s,\n", quote(ep.Address))
		fmt.Fprintf(w, "\t\tport = %d,\n", ep.Port)
		fmt.Fprintf(w, "\t\tsend = %t,\n", ep.Send)
		fmt.Fprintf(w, "\t\treceive = %t,\n", ep.Receive)
		fmt.Fprintln(w, "\t},")
	}
	fmt.Fprintln(w, "}")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "return config")

	return nil
}

// WriteSuite renders script as a Lua suite.
func WriteSuite(w io.Writer, script *types.Script) error {
	fmt.Fprintln(w, "return {")
	if script.Raw {
		fmt.Fprintln(w, "\traw = true,")
	}
	fmt.Fprintln(w, "\tsends = {")
	for _, line := range script.Sends {
		fmt.Fprintf(w, "\t\t%s,\n", quote(line))
	}
	fmt.Fprintln(w, "\t},")
	fmt.Fprintln(w, "\texpects = {")
	for _, line := range script.Expects {
		fmt.Fprintf(w, "\t\t%s,\n", quote(line))
	}
	fmt.Fprintln(w, "\t},")
	fmt.Fprintln(w, "}")
	return nil
}

// quote renders s as a Lua string literal. Lua 5.1 has no \x escapes, so
// anything outside printable ASCII is written as a decimal escape.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < ' ' || c > '~':
			fmt.Fprintf(&sb, "\\%03d", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
