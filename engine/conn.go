package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/types"
)

// confirm runs fn and waits up to timeout for its result. A handle that
// shows up after the deadline is closed.
func confirm[T io.Closer](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.v.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// waitDone blocks until a reader signals exit or the timeout passes.
func waitDone(ctx context.Context, done chan struct{}, timeout time.Duration) error {
	if done == nil {
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bind (re)binds a UDP role. The server binds its configured port on all
// interfaces; the client takes an ephemeral port so replies reach it.
func (e *Engine) Bind(ctx context.Context, role types.Role) error {
	if role != types.RoleUDPServer && role != types.RoleUDPClient {
		return newOpError("bind", role, "", ErrUnsupportedRole)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.bind(ctx, role)
}

func (e *Engine) bind(ctx context.Context, role types.Role) error {
	if err := e.unbind(ctx, role); err != nil && !IsInformational(err) {
		return err
	}

	cfg := e.Registry.Config(role)
	port := cfg.Port
	if role == types.RoleUDPClient {
		port = 0
	}
	addr := net.JoinHostPort("", strconv.Itoa(port))

	e.Registry.setPending(role)
	conn, err := confirm(ctx, e.timeout, func(ctx context.Context) (*net.UDPConn, error) {
		pc, err := e.listenCf.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return nil, err
		}
		return pc.(*net.UDPConn), nil
	})
	if err != nil {
		e.Registry.fail(role, err)
		e.Status.Append(fmt.Sprintf("Failed to bind to %d! ", port))
		e.logf("%s failed to bind to %s: %v", cfg.Name, addr, err)
		logrus.WithFields(fields(role, addr)).WithError(err).Warn("Bind failed")
		return newOpError("bind", role, addr, err)
	}

	local := conn.LocalAddr().(*net.UDPAddr).Port
	done := e.Registry.attachUDP(role, conn)
	go e.readUDP(role, conn, done)

	e.Status.Append(fmt.Sprintf("Bound %s to %d! ", cfg.Name, local))
	e.logf("%s bound to %s", cfg.Name, conn.LocalAddr())
	logrus.WithFields(fields(role, conn.LocalAddr().String())).Info("Bound UDP socket")
	return nil
}

// Unbind releases a UDP role. Unbinding an unbound role only reports it.
func (e *Engine) Unbind(ctx context.Context, role types.Role) error {
	if role != types.RoleUDPServer && role != types.RoleUDPClient {
		return newOpError("unbind", role, "", ErrUnsupportedRole)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.unbind(ctx, role)
}

func (e *Engine) unbind(ctx context.Context, role types.Role) error {
	cfg := e.Registry.Config(role)

	s, ok := e.Registry.beginClose(role)
	if !ok {
		e.Status.Set(fmt.Sprintf("%s not currently bound! ", cfg.Name))
		return newOpError("unbind", role, "", ErrNotBound)
	}

	local := s.udp.LocalAddr().(*net.UDPAddr).Port
	s.udp.Close()

	if err := waitDone(ctx, s.done, e.timeout); err != nil {
		e.Registry.detach(role, types.StateFailed, err)
		e.Status.Set(fmt.Sprintf("Failed to unbind %s from %d! ", cfg.Name, local))
		e.logf("%s failed to unbind: %v", cfg.Name, err)
		return newOpError("unbind", role, strconv.Itoa(local), err)
	}

	e.Registry.detach(role, types.StateIdle, nil)
	e.Status.Set(fmt.Sprintf("Unbound %s from %d! ", cfg.Name, local))
	e.logf("%s unbound from %d", cfg.Name, local)
	return nil
}

// Connect drops any existing client connection and dials the configured
// host and port.
func (e *Engine) Connect(ctx context.Context, role types.Role) error {
	if role != types.RoleTCPClient {
		return newOpError("connect", role, "", ErrUnsupportedRole)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.disconnect(ctx, role); err != nil && !IsInformational(err) {
		return err
	}

	cfg := e.Registry.Config(role)
	addr := net.JoinHostPort(cfg.RemoteHost, strconv.Itoa(cfg.Port))

	e.Registry.setPending(role)
	conn, err := confirm(ctx, e.timeout, func(ctx context.Context) (net.Conn, error) {
		return e.dial(ctx, "tcp", addr)
	})
	if err != nil {
		e.Registry.fail(role, err)
		e.Status.Append(fmt.Sprintf("Failed to connect %s to %s! ", cfg.Name, addr))
		e.logf("%s failed to connect to %s: %v", cfg.Name, addr, err)
		logrus.WithFields(fields(role, addr)).WithError(err).Warn("Connect failed")
		return newOpError("connect", role, addr, err)
	}

	done := e.Registry.attachConn(role, conn)
	go e.readTCP(role, conn, done)

	e.Status.Append(fmt.Sprintf("Connected %s to %s! ", cfg.Name, addr))
	e.logf("%s connected to %s", cfg.Name, conn.RemoteAddr())
	logrus.WithFields(fields(role, addr)).Info("Connected")
	return nil
}

// Disconnect closes the TCP client or the accepted peer. Dropping the peer
// re-arms the server listener.
func (e *Engine) Disconnect(ctx context.Context, role types.Role) error {
	if role != types.RoleTCPClient && role != types.RoleTCPServerPeer {
		return newOpError("disconnect", role, "", ErrUnsupportedRole)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.disconnect(ctx, role); err != nil {
		return err
	}
	if role == types.RoleTCPServerPeer {
		return e.rearm(ctx)
	}
	return nil
}

func (e *Engine) disconnect(ctx context.Context, role types.Role) error {
	cfg := e.Registry.Config(role)

	s, ok := e.Registry.beginClose(role)
	if !ok {
		e.Status.Set(fmt.Sprintf("%s not currently connected! ", cfg.Name))
		return newOpError("disconnect", role, "", ErrNotConnected)
	}

	peer := s.conn.RemoteAddr().String()
	s.conn.Close()

	if err := waitDone(ctx, s.done, e.timeout); err != nil {
		e.Registry.detach(role, types.StateFailed, err)
		e.Status.Set(fmt.Sprintf("Failed to disconnect %s from %s! ", cfg.Name, peer))
		e.logf("%s failed to disconnect from %s: %v", cfg.Name, peer, err)
		return newOpError("disconnect", role, peer, err)
	}

	e.Registry.detach(role, types.StateIdle, nil)
	e.Status.Set(fmt.Sprintf("%s disconnected from %s! ", cfg.Name, peer))
	e.logf("%s disconnected from %s", cfg.Name, peer)
	return nil
}

// ResetServer drops the accepted peer, closes the listener and listens again
// on the configured port.
func (e *Engine) ResetServer(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.disconnect(ctx, types.RoleTCPServerPeer); err != nil && !IsInformational(err) {
		return err
	}
	return e.rearm(ctx)
}

// rearm replaces the listener without touching the peer.
func (e *Engine) rearm(ctx context.Context) error {
	if err := e.closeListener(ctx); err != nil {
		return err
	}
	return e.listen(ctx)
}

func (e *Engine) closeListener(ctx context.Context) error {
	s, ok := e.Registry.beginClose(types.RoleTCPServerListener)
	if !ok {
		return nil
	}
	cfg := e.Registry.Config(types.RoleTCPServerListener)
	addr := s.listener.Addr().String()
	s.listener.Close()

	if err := waitDone(ctx, s.done, e.timeout); err != nil {
		e.Registry.detach(types.RoleTCPServerListener, types.StateFailed, err)
		e.Status.Append(fmt.Sprintf("Failed to close %s on %s! ", cfg.Name, addr))
		return newOpError("close", types.RoleTCPServerListener, addr, err)
	}
	e.Registry.detach(types.RoleTCPServerListener, types.StateIdle, nil)
	return nil
}

func (e *Engine) listen(ctx context.Context) error {
	cfg := e.Registry.Config(types.RoleTCPServerListener)
	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))

	e.Registry.setPending(types.RoleTCPServerListener)
	ln, err := confirm(ctx, e.timeout, func(ctx context.Context) (net.Listener, error) {
		return e.listenCf.Listen(ctx, "tcp", addr)
	})
	if err != nil {
		e.Registry.fail(types.RoleTCPServerListener, err)
		e.Status.Append(fmt.Sprintf("Failed to listen %s on %d! ", cfg.Name, cfg.Port))
		e.logf("%s failed to listen on %s: %v", cfg.Name, addr, err)
		logrus.WithFields(fields(types.RoleTCPServerListener, addr)).WithError(err).Warn("Listen failed")
		return newOpError("listen", types.RoleTCPServerListener, addr, err)
	}

	done, gen := e.Registry.attachListener(ln)
	go e.acceptLoop(ln, done, gen)

	e.logf("%s listening on %s", cfg.Name, ln.Addr())
	return nil
}

// acceptLoop takes a single connection. The listener is closed before the
// peer is handed over, so at most one peer exists at a time.
func (e *Engine) acceptLoop(ln net.Listener, done chan struct{}, gen uint64) {
	conn, err := ln.Accept()
	if err != nil {
		lost := e.Registry.readerExited(types.RoleTCPServerListener, ln, err)
		close(done)
		if lost {
			e.Status.Append("TCP Server stopped listening! ")
			e.logf("TCP Server listener error: %v", err)
		}
		return
	}

	e.Registry.detachListener(ln)
	ln.Close()
	close(done)

	e.acceptPeer(conn, gen)
}

func (e *Engine) acceptPeer(conn net.Conn, gen uint64) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed() || !e.Registry.listenerCurrent(gen) {
		conn.Close()
		return
	}

	// Only reachable if a second accept raced the first.
	if e.Registry.State(types.RoleTCPServerPeer) == types.StateActive {
		if err := e.disconnect(e.ctx, types.RoleTCPServerPeer); err != nil && !IsInformational(err) {
			conn.Close()
			return
		}
	}

	done := e.Registry.attachConn(types.RoleTCPServerPeer, conn)
	go e.readTCP(types.RoleTCPServerPeer, conn, done)

	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	e.Status.Append(fmt.Sprintf("TCP Server connected to %s! ", host))
	e.logf("TCP Server accepted %s", conn.RemoteAddr())
	logrus.WithFields(fields(types.RoleTCPServerPeer, conn.RemoteAddr().String())).Info("Accepted peer")
}

// connectionLost reports a peer-initiated teardown. A lost server peer
// re-arms the listener.
func (e *Engine) connectionLost(role types.Role, peer string) {
	cfg := e.Registry.Config(role)
	e.Status.Set(fmt.Sprintf("%s Connection Lost to %s! ", cfg.Name, peer))
	e.logf("%s lost connection to %s", cfg.Name, peer)
	logrus.WithFields(fields(role, peer)).Warn("Connection lost")

	if role != types.RoleTCPServerPeer || e.closed() {
		return
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.closed() {
		return
	}
	if err := e.rearm(e.ctx); err != nil {
		logrus.WithFields(fields(role, peer)).WithError(err).Warn("Re-arm failed")
	}
}
