package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/types"
)

const defaultTimeout = 5000 * time.Millisecond

// Engine owns the endpoint registry and every transition, send and receive
// performed on it.
type Engine struct {
	Registry *Registry
	Status   *Status
	Recv     *Logger // received messages, one display line per chunk
	Log      *Logger // activity, timestamped

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes connect, bind, disconnect, unbind and reset so a
	// configuration change never races an in-flight transition.
	opMu sync.Mutex

	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	listenCf net.ListenConfig
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithTimeout sets the confirmation timeout for every transition.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDialer replaces the TCP dialer used by Connect.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(e *Engine) {
		if dial != nil {
			e.dial = dial
		}
	}
}

// WithLogs sets the file sinks and in-memory capacity of both logs.
func WithLogs(recvPath, activityPath string, lines int) Option {
	return func(e *Engine) {
		e.Recv = NewLogger(recvPath, lines)
		e.Log = NewLogger(activityPath, lines)
	}
}

// NewEngine creates an engine with every role Idle.
func NewEngine(cfgs []types.EndpointConfig, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	d := &net.Dialer{}
	e := &Engine{
		Registry: NewRegistry(cfgs),
		Status:   &Status{},
		ctx:      ctx,
		cancel:   cancel,
		timeout:  defaultTimeout,
		dial:     d.DialContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Recv == nil {
		e.Recv = NewLogger("", defaultLogLines)
	}
	if e.Log == nil {
		e.Log = NewLogger("", defaultLogLines)
	}
	return e
}

func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Start binds the UDP server and arms the TCP server. The status line is
// cleared when both succeed.
func (e *Engine) Start(ctx context.Context) error {
	bindErr := e.Bind(ctx, types.RoleUDPServer)
	resetErr := e.ResetServer(ctx)
	if bindErr == nil && resetErr == nil {
		e.Status.Set("")
		return nil
	}
	if bindErr != nil {
		return bindErr
	}
	return resetErr
}

// Close tears down every socket and waits briefly for the readers to exit.
func (e *Engine) Close() {
	e.cancel()

	e.opMu.Lock()
	waits := e.Registry.closeAll()
	e.opMu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-time.After(e.timeout):
		}
	}

	e.log("All endpoints closed")
	e.Recv.Close()
	e.Log.Close()
}

func (e *Engine) closed() bool {
	return e.ctx.Err() != nil
}

func (e *Engine) log(msg string) {
	ts := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s", ts, msg)
	e.Log.Write(line)
}

func (e *Engine) logf(format string, args ...interface{}) {
	e.log(fmt.Sprintf(format, args...))
}

func fields(role types.Role, addr string) logrus.Fields {
	return logrus.Fields{
		"component": "engine",
		"role":      role.String(),
		"addr":      addr,
	}
}
