package engine

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netprobe/codec"
	"github.com/samaelod/netprobe/types"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newTestEngine(t *testing.T, cfgs []types.EndpointConfig, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithTimeout(time.Second)}, opts...)
	e := NewEngine(cfgs, opts...)
	t.Cleanup(e.Close)
	return e
}

func localAddr(t *testing.T, e *Engine, role types.Role) string {
	t.Helper()
	for _, st := range e.Registry.Snapshot() {
		if st.Role == role {
			require.NotEmpty(t, st.LocalAddr, "role %s has no local address", role)
			return st.LocalAddr
		}
	}
	t.Fatalf("role %s not in snapshot", role)
	return ""
}

func localPort(t *testing.T, e *Engine, role types.Role) int {
	t.Helper()
	_, p, err := net.SplitHostPort(localAddr(t, e, role))
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}

func TestUnbindWhenNotBound(t *testing.T) {
	e := newTestEngine(t, nil)

	err := e.Unbind(context.Background(), types.RoleUDPServer)
	assert.ErrorIs(t, err, ErrNotBound)
	assert.True(t, IsInformational(err))
	assert.Equal(t, types.StateIdle, e.Registry.State(types.RoleUDPServer))
	assert.Equal(t, "UDP Server not currently bound! ", e.Status.String())
}

func TestBindReceiveUnbind(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleUDPServer, Port: 0, ReceiveEnabled: true},
	})
	ctx := context.Background()

	require.NoError(t, e.Bind(ctx, types.RoleUDPServer))
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleUDPServer))
	port := localPort(t, e, types.RoleUDPServer)
	assert.Contains(t, e.Status.String(), "Bound UDP Server to "+strconv.Itoa(port)+"! ")

	c, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("hello\r\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		lines := e.Recv.Lines()
		return len(lines) == 1 && lines[0] == `UDP Server: hello\xd\xa`
	}, waitFor, tick)

	require.NoError(t, e.Unbind(ctx, types.RoleUDPServer))
	assert.Equal(t, types.StateIdle, e.Registry.State(types.RoleUDPServer))
	assert.Equal(t, "Unbound UDP Server from "+strconv.Itoa(port)+"! ", e.Status.String())
}

func TestRebindReplacesSocket(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{{Role: types.RoleUDPServer, Port: 0}})
	ctx := context.Background()

	require.NoError(t, e.Bind(ctx, types.RoleUDPServer))
	first := localPort(t, e, types.RoleUDPServer)
	require.NoError(t, e.Bind(ctx, types.RoleUDPServer))

	assert.Contains(t, e.Status.String(), "Unbound UDP Server from "+strconv.Itoa(first)+"! Bound UDP Server to ")
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleUDPServer))
}

func TestReceiveDisabledDiscards(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{{Role: types.RoleUDPServer, Port: 0}})
	require.NoError(t, e.Bind(context.Background(), types.RoleUDPServer))

	c, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort(t, e, types.RoleUDPServer))))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("one"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	e.Registry.Update(types.RoleUDPServer, func(cfg *types.EndpointConfig) { cfg.ReceiveEnabled = true })
	_, err = c.Write([]byte("two"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		lines := e.Recv.Lines()
		return len(lines) == 1 && lines[0] == "UDP Server: two"
	}, waitFor, tick)
}

func TestConnectTimeout(t *testing.T) {
	blocking := func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPClient, RemoteHost: "192.0.2.1", Port: 9},
	}, WithTimeout(100*time.Millisecond), WithDialer(blocking))

	err := e.Connect(context.Background(), types.RoleTCPClient)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, types.StateFailed, e.Registry.State(types.RoleTCPClient))
	assert.Nil(t, e.Registry.tcpConn(types.RoleTCPClient))
	assert.Contains(t, e.Status.String(), "Failed to connect TCP Client to 192.0.2.1:9! ")
}

func TestConnectSendReceiveLost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	closePeer := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		if string(buf[:n]) == "PING" {
			conn.Write([]byte("PONG"))
		}
		<-closePeer
		conn.Close()
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPClient, RemoteHost: "127.0.0.1", Port: p, SendEnabled: true, ReceiveEnabled: true},
	})
	ctx := context.Background()

	require.NoError(t, e.Connect(ctx, types.RoleTCPClient))
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleTCPClient))
	assert.Contains(t, e.Status.String(), "Connected TCP Client to 127.0.0.1:"+port+"! ")

	res, err := e.Send(types.ModeText, "PING")
	require.NoError(t, err)
	assert.Equal(t, []types.Role{types.RoleTCPClient}, res.Sent)

	assert.Eventually(t, func() bool {
		lines := e.Recv.Lines()
		return len(lines) == 1 && lines[0] == "TCP Client: PONG"
	}, waitFor, tick)

	close(closePeer)
	assert.Eventually(t, func() bool {
		return e.Registry.State(types.RoleTCPClient) == types.StateFailed
	}, waitFor, tick)
	assert.Contains(t, e.Status.String(), "TCP Client Connection Lost to 127.0.0.1:"+port+"! ")
	assert.Equal(t, ErrConnectionLost.Error(), e.Registry.Reason(types.RoleTCPClient))

	err = e.Disconnect(ctx, types.RoleTCPClient)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "TCP Client not currently connected! ", e.Status.String())
}

func TestVoluntaryDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			buf := make([]byte, 16)
			for {
				if _, err := conn.Read(buf); err != nil {
					return
				}
			}
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	e := newTestEngine(t, []types.EndpointConfig{{Role: types.RoleTCPClient, RemoteHost: "127.0.0.1", Port: p}})
	ctx := context.Background()

	require.NoError(t, e.Connect(ctx, types.RoleTCPClient))
	require.NoError(t, e.Disconnect(ctx, types.RoleTCPClient))
	assert.Equal(t, types.StateIdle, e.Registry.State(types.RoleTCPClient))
	assert.Contains(t, e.Status.String(), "TCP Client disconnected from 127.0.0.1:"+port+"! ")
	assert.NotContains(t, e.Status.String(), "Connection Lost")
}

func TestServerSinglePeerAndRearm(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPServerListener, Port: 0, SendEnabled: true, ReceiveEnabled: true},
	})
	ctx := context.Background()

	require.NoError(t, e.ResetServer(ctx))
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleTCPServerListener))
	addr := localAddr(t, e, types.RoleTCPServerListener)
	_, port, _ := net.SplitHostPort(addr)

	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return e.Registry.State(types.RoleTCPServerPeer) == types.StateActive
	}, waitFor, tick)
	assert.Equal(t, types.StateIdle, e.Registry.State(types.RoleTCPServerListener))
	assert.Contains(t, e.Status.String(), "TCP Server connected to 127.0.0.1! ")

	_, err = c.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		lines := e.Recv.Lines()
		return len(lines) == 1 && lines[0] == "TCP Server: hi"
	}, waitFor, tick)

	res := e.SendMessage([]byte("yo"))
	require.NoError(t, res.Err())
	buf := make([]byte, 2)
	c.SetReadDeadline(time.Now().Add(waitFor))
	_, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "yo", string(buf))

	c.Close()
	assert.Eventually(t, func() bool {
		return e.Registry.State(types.RoleTCPServerListener) == types.StateActive
	}, waitFor, tick)
	assert.Equal(t, types.StateFailed, e.Registry.State(types.RoleTCPServerPeer))
	assert.Contains(t, e.Status.String(), "TCP Server Connection Lost to ")
}

func TestSendInvalidHexSendsNothing(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	_, port, _ := net.SplitHostPort(pc.LocalAddr().String())
	p, _ := strconv.Atoi(port)

	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleUDPClient, RemoteHost: "127.0.0.1", Port: p, SendEnabled: true},
	})

	_, err = e.Send(types.ModeHex, "zz")
	assert.ErrorIs(t, err, codec.ErrInvalidHex)
	assert.Equal(t, "ERROR: Invalid Byte Array Input!", e.Status.String())
	assert.Equal(t, types.StateIdle, e.Registry.State(types.RoleUDPClient))

	pc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = pc.ReadFrom(make([]byte, 16))
	assert.Error(t, err)
}

func TestUDPClientSendsWithoutBind(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	_, port, _ := net.SplitHostPort(pc.LocalAddr().String())
	p, _ := strconv.Atoi(port)

	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleUDPClient, RemoteHost: "127.0.0.1", Port: p, SendEnabled: true, ReceiveEnabled: true},
	})

	res, err := e.Send(types.ModeHex, "4 1")
	require.NoError(t, err)
	assert.Equal(t, []types.Role{types.RoleUDPClient}, res.Sent)
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleUDPClient))

	buf := make([]byte, 16)
	pc.SetReadDeadline(time.Now().Add(waitFor))
	n, from, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x01}, buf[:n])

	_, err = pc.WriteTo([]byte("ack"), from)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		lines := e.Recv.Lines()
		return len(lines) == 1 && lines[0] == "UDP Client: ack"
	}, waitFor, tick)
}

func TestSendSkipsRolesWithoutSocket(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPClient, RemoteHost: "127.0.0.1", Port: 1, SendEnabled: true},
		{Role: types.RoleTCPServerListener, Port: 0},
	})

	res := e.SendMessage([]byte("x"))
	assert.Empty(t, res.Sent)
	require.Contains(t, res.Failed, types.RoleTCPClient)
	assert.ErrorIs(t, res.Failed[types.RoleTCPClient], ErrNoHandle)
	assert.NotContains(t, res.Failed, types.RoleTCPServerPeer)
}

func TestUnsupportedRoles(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, e.Bind(ctx, types.RoleTCPClient), ErrUnsupportedRole)
	assert.ErrorIs(t, e.Connect(ctx, types.RoleUDPServer), ErrUnsupportedRole)
	assert.ErrorIs(t, e.Disconnect(ctx, types.RoleUDPClient), ErrUnsupportedRole)
}

func TestStartArmsServers(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPServerListener, Port: 0},
		{Role: types.RoleUDPServer, Port: 0},
	})

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleUDPServer))
	assert.Equal(t, types.StateActive, e.Registry.State(types.RoleTCPServerListener))
	assert.Equal(t, "", e.Status.String())
}

func TestCloseReleasesSockets(t *testing.T) {
	e := newTestEngine(t, []types.EndpointConfig{
		{Role: types.RoleTCPServerListener, Port: 0},
		{Role: types.RoleUDPServer, Port: 0},
	})
	require.NoError(t, e.Start(context.Background()))
	udpPort := localPort(t, e, types.RoleUDPServer)
	tcpPort := localPort(t, e, types.RoleTCPServerListener)

	e.Close()

	for _, role := range types.Roles {
		assert.Equal(t, types.StateIdle, e.Registry.State(role), role.String())
	}

	pc, err := net.ListenPacket("udp", net.JoinHostPort("", strconv.Itoa(udpPort)))
	require.NoError(t, err)
	pc.Close()
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(tcpPort)))
	require.NoError(t, err)
	ln.Close()
}
