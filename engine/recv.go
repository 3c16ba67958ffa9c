package engine

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/codec"
	"github.com/samaelod/netprobe/types"
)

const (
	tcpReadSize = 4096
	udpReadSize = 65535
)

// readTCP drains conn until it fails. Each read becomes one display line.
func (e *Engine) readTCP(role types.Role, conn net.Conn, done chan struct{}) {
	buf := make([]byte, tcpReadSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			e.deliver(role, buf[:n])
		}
		if err != nil {
			lost := e.Registry.readerExited(role, conn, ErrConnectionLost)
			if lost {
				conn.Close()
			}
			close(done)
			if lost {
				e.connectionLost(role, conn.RemoteAddr().String())
			}
			return
		}
	}
}

// readUDP drains datagrams until the socket is closed. Each datagram
// becomes one display line.
func (e *Engine) readUDP(role types.Role, conn *net.UDPConn, done chan struct{}) {
	buf := make([]byte, udpReadSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if e.Registry.readerExited(role, conn, err) {
				conn.Close()
				cfg := e.Registry.Config(role)
				e.Status.Set(fmt.Sprintf("%s socket error: %v! ", cfg.Name, err))
				logrus.WithFields(fields(role, conn.LocalAddr().String())).WithError(err).Warn("UDP read failed")
			}
			close(done)
			return
		}
		e.Registry.notePeer(role, conn, addr)
		e.deliver(role, buf[:n])
	}
}

// deliver appends one chunk to the received log, or drops it when the
// role's receive flag is off.
func (e *Engine) deliver(role types.Role, chunk []byte) {
	cfg := e.Registry.Config(role)
	if !cfg.ReceiveEnabled {
		return
	}
	e.Recv.Write(cfg.Name + ": " + codec.Escape(chunk))
}
