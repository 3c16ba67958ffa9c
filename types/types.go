package types

import "fmt"

// Role identifies one of the socket roles managed by the engine.
type Role int

const (
	RoleTCPClient Role = iota
	RoleTCPServerListener
	RoleTCPServerPeer
	RoleUDPClient
	RoleUDPServer
)

// Roles lists every role in display order.
var Roles = []Role{
	RoleTCPClient,
	RoleTCPServerListener,
	RoleTCPServerPeer,
	RoleUDPClient,
	RoleUDPServer,
}

func (r Role) String() string {
	switch r {
	case RoleTCPClient:
		return "TCP Client"
	case RoleTCPServerListener, RoleTCPServerPeer:
		return "TCP Server"
	case RoleUDPClient:
		return "UDP Client"
	case RoleUDPServer:
		return "UDP Server"
	}
	return "Unknown"
}

// IsTCP reports whether the role carries a stream connection or listener.
func (r Role) IsTCP() bool {
	return r == RoleTCPClient || r == RoleTCPServerListener || r == RoleTCPServerPeer
}

// ConfigRole returns the role whose configuration record applies to r.
// The accepted peer shares the listener's record.
func (r Role) ConfigRole() Role {
	if r == RoleTCPServerPeer {
		return RoleTCPServerListener
	}
	return r
}

// ParseRole maps a profile kind ("tcp_client", "tcp_server", "udp_client",
// "udp_server") to its role.
func ParseRole(kind string) (Role, error) {
	switch kind {
	case "tcp_client":
		return RoleTCPClient, nil
	case "tcp_server":
		return RoleTCPServerListener, nil
	case "udp_client":
		return RoleUDPClient, nil
	case "udp_server":
		return RoleUDPServer, nil
	}
	return 0, fmt.Errorf("unknown endpoint kind %q", kind)
}

// Kind is the inverse of ParseRole.
func (r Role) Kind() string {
	switch r {
	case RoleTCPClient:
		return "tcp_client"
	case RoleTCPServerListener, RoleTCPServerPeer:
		return "tcp_server"
	case RoleUDPClient:
		return "udp_client"
	case RoleUDPServer:
		return "udp_server"
	}
	return ""
}

type ConnState int

const (
	StateIdle ConnState = iota
	StatePending
	StateActive
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// EndpointConfig is the operator-facing configuration of one role.
// Operations copy it when they start and never observe later edits.
type EndpointConfig struct {
	Role           Role
	Name           string
	RemoteHost     string
	Port           int
	SendEnabled    bool
	ReceiveEnabled bool
}

// Mode selects how operator text becomes a payload.
type Mode int

const (
	ModeText Mode = iota
	ModeHex
)

func (m Mode) String() string {
	if m == ModeHex {
		return "hex"
	}
	return "text"
}

func ParseMode(s string) Mode {
	if s == "hex" {
		return ModeHex
	}
	return ModeText
}

// Profile is the persisted endpoint setup, read from and written to Lua.
type Profile struct {
	Globals   Globals
	Endpoints []Endpoint
}

type Globals struct {
	Timeout  int    // ms
	Delay    int    // ms between suite lines
	Settle   int    // ms of receive silence required before the next suite line
	Mode     string // "text" | "hex"
	LogLines int    // Max lines in memory buffer (default 1000)
}

type Endpoint struct {
	Kind    string // "tcp_client" | "tcp_server" | "udp_client" | "udp_server"
	Address string
	Port    int
	Send    bool
	Receive bool
}

// DefaultProfile mirrors the stock layout: every role on localhost, the
// TCP client sending and receiving, both servers receiving.
func DefaultProfile() *Profile {
	return &Profile{
		Globals: Globals{
			Timeout:  5000,
			Delay:    100,
			Settle:   50,
			Mode:     "text",
			LogLines: 1000,
		},
		Endpoints: []Endpoint{
			{Kind: "tcp_client", Address: "127.0.0.1", Port: 5000, Send: true, Receive: true},
			{Kind: "tcp_server", Address: "0.0.0.0", Port: 5001, Receive: true},
			{Kind: "udp_client", Address: "127.0.0.1", Port: 5002},
			{Kind: "udp_server", Address: "0.0.0.0", Port: 5003, Receive: true},
		},
	}
}

// EndpointConfigs converts the profile endpoints into engine configuration
// records. Unknown kinds are reported, later duplicates win.
func (p *Profile) EndpointConfigs() ([]EndpointConfig, error) {
	out := make([]EndpointConfig, 0, len(p.Endpoints))
	for i, ep := range p.Endpoints {
		role, err := ParseRole(ep.Kind)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		if ep.Port < 0 || ep.Port > 65535 {
			return nil, fmt.Errorf("endpoint %d: port %d out of range", i, ep.Port)
		}
		out = append(out, EndpointConfig{
			Role:           role,
			Name:           role.String(),
			RemoteHost:     ep.Address,
			Port:           ep.Port,
			SendEnabled:    ep.Send,
			ReceiveEnabled: ep.Receive,
		})
	}
	return out, nil
}

// Script is a parsed test suite: lines to send, then lines expected back.
// Raw sends go out byte for byte; otherwise they are encoded as text.
type Script struct {
	Sends   []string
	Expects []string
	Raw     bool
}
