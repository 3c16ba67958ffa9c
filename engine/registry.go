package engine

import (
	"net"
	"sync"

	"github.com/samaelod/netprobe/types"
)

// slot holds the live state of one role.
type slot struct {
	state  types.ConnState
	reason string

	conn     net.Conn // TCP client or accepted peer
	udp      *net.UDPConn
	listener net.Listener
	lastPeer *net.UDPAddr // last UDP sender seen on this socket

	closing bool
	done    chan struct{} // closed when the reader or accept loop exits
}

func (s *slot) live() bool {
	return s.conn != nil || s.udp != nil || s.listener != nil
}

// Registry owns one configuration record and one socket slot per role.
type Registry struct {
	mu        sync.Mutex
	configs   map[types.Role]types.EndpointConfig
	slots     map[types.Role]*slot
	listenGen uint64
}

func NewRegistry(cfgs []types.EndpointConfig) *Registry {
	r := &Registry{
		configs: make(map[types.Role]types.EndpointConfig, len(types.Roles)),
		slots:   make(map[types.Role]*slot, len(types.Roles)),
	}
	for _, role := range types.Roles {
		cr := role.ConfigRole()
		r.configs[cr] = types.EndpointConfig{Role: cr, Name: cr.String()}
		r.slots[role] = &slot{}
	}
	for _, cfg := range cfgs {
		r.SetConfig(cfg)
	}
	return r
}

// SetConfig replaces the configuration record of cfg.Role. Operations that
// already took their snapshot are unaffected.
func (r *Registry) SetConfig(cfg types.EndpointConfig) {
	cfg.Role = cfg.Role.ConfigRole()
	if cfg.Name == "" {
		cfg.Name = cfg.Role.String()
	}
	r.mu.Lock()
	r.configs[cfg.Role] = cfg
	r.mu.Unlock()
}

// Update applies fn to a copy of the role's record and stores the result.
func (r *Registry) Update(role types.Role, fn func(*types.EndpointConfig)) types.EndpointConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.configs[role.ConfigRole()]
	fn(&cfg)
	cfg.Role = role.ConfigRole()
	r.configs[cfg.Role] = cfg
	return cfg
}

// Config returns a snapshot of the record that applies to role.
func (r *Registry) Config(role types.Role) types.EndpointConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configs[role.ConfigRole()]
}

func (r *Registry) State(role types.Role) types.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[role].state
}

func (r *Registry) Reason(role types.Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[role].reason
}

// EndpointStatus is a point-in-time view of one role for display.
type EndpointStatus struct {
	Config    types.EndpointConfig
	Role      types.Role
	State     types.ConnState
	Reason    string
	LocalAddr string
	PeerAddr  string
}

func (r *Registry) Snapshot() []EndpointStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EndpointStatus, 0, len(types.Roles))
	for _, role := range types.Roles {
		s := r.slots[role]
		st := EndpointStatus{
			Config: r.configs[role.ConfigRole()],
			Role:   role,
			State:  s.state,
			Reason: s.reason,
		}
		switch {
		case s.conn != nil:
			st.LocalAddr = s.conn.LocalAddr().String()
			st.PeerAddr = s.conn.RemoteAddr().String()
		case s.udp != nil:
			st.LocalAddr = s.udp.LocalAddr().String()
			if s.lastPeer != nil {
				st.PeerAddr = s.lastPeer.String()
			}
		case s.listener != nil:
			st.LocalAddr = s.listener.Addr().String()
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) setPending(role types.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	s.state = types.StatePending
	s.reason = ""
}

func (r *Registry) fail(role types.Role, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	s.state = types.StateFailed
	s.reason = err.Error()
}

func (r *Registry) attachConn(role types.Role, conn net.Conn) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := make(chan struct{})
	r.slots[role] = &slot{state: types.StateActive, conn: conn, done: done}
	return done
}

func (r *Registry) attachUDP(role types.Role, conn *net.UDPConn) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := make(chan struct{})
	r.slots[role] = &slot{state: types.StateActive, udp: conn, done: done}
	return done
}

// attachUDPIfEmpty installs conn only when the role has no live socket. It
// returns the socket now in place and whether conn was the one installed.
func (r *Registry) attachUDPIfEmpty(role types.Role, conn *net.UDPConn) (*net.UDPConn, chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s.udp != nil {
		return s.udp, nil, false
	}
	done := make(chan struct{})
	r.slots[role] = &slot{state: types.StateActive, udp: conn, done: done}
	return conn, done, true
}

// attachListener installs ln and returns its generation. An accepted
// connection is only adopted while its listener generation is current.
func (r *Registry) attachListener(ln net.Listener) (chan struct{}, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listenGen++
	done := make(chan struct{})
	r.slots[types.RoleTCPServerListener] = &slot{state: types.StateActive, listener: ln, done: done}
	return done, r.listenGen
}

func (r *Registry) listenerCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listenGen == gen
}

// beginClose marks an active role as closing and hands back its slot.
// Readers that fail on a closing slot exit quietly instead of reporting a
// lost connection.
func (r *Registry) beginClose(role types.Role) (*slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s.state != types.StateActive || !s.live() {
		return nil, false
	}
	s.closing = true
	cp := *s
	return &cp, true
}

// detach clears the role's handles and leaves it in state.
func (r *Registry) detach(role types.Role, state types.ConnState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &slot{state: state}
	if err != nil {
		s.reason = err.Error()
	}
	r.slots[role] = s
}

// detachListener drops ln if it is still the installed listener.
func (r *Registry) detachListener(ln net.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[types.RoleTCPServerListener]
	if s.listener == ln {
		r.slots[types.RoleTCPServerListener] = &slot{state: types.StateIdle}
	}
}

// readerExited is called by a reader whose socket failed. It returns true
// when the failure was not requested, after marking the role Failed and
// dropping the handle.
func (r *Registry) readerExited(role types.Role, c interface{}, cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s.closing || s.state != types.StateActive {
		return false
	}
	switch h := c.(type) {
	case *net.UDPConn:
		if s.udp != h {
			return false
		}
	case net.Conn:
		if s.conn != h {
			return false
		}
	case net.Listener:
		if s.listener != h {
			return false
		}
	}
	r.slots[role] = &slot{state: types.StateFailed, reason: cause.Error()}
	return true
}

func (r *Registry) tcpConn(role types.Role) net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s.state != types.StateActive {
		return nil
	}
	return s.conn
}

func (r *Registry) udpConn(role types.Role) (*net.UDPConn, *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[role]
	if s.state != types.StateActive {
		return nil, nil
	}
	return s.udp, s.lastPeer
}

func (r *Registry) notePeer(role types.Role, conn *net.UDPConn, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.slots[role]; s.udp == conn {
		s.lastPeer = addr
	}
}

// closeAll marks every live role closing, closes its handles and returns
// the reader completion channels.
func (r *Registry) closeAll() []chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var waits []chan struct{}
	for role, s := range r.slots {
		if !s.live() {
			continue
		}
		s.closing = true
		if s.conn != nil {
			s.conn.Close()
		}
		if s.udp != nil {
			s.udp.Close()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		if s.done != nil {
			waits = append(waits, s.done)
		}
		r.slots[role] = &slot{state: types.StateIdle, closing: true}
	}
	return waits
}
