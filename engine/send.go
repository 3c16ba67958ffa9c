package engine

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/codec"
	"github.com/samaelod/netprobe/types"
)

// sendRoles are the roles that can carry outbound payloads, in send order.
var sendRoles = []types.Role{
	types.RoleTCPClient,
	types.RoleTCPServerPeer,
	types.RoleUDPClient,
	types.RoleUDPServer,
}

// SendResult lists which roles got the payload and why the others did not.
type SendResult struct {
	Sent   []types.Role
	Failed map[types.Role]error
}

func (r SendResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, role := range sendRoles {
		if err, ok := r.Failed[role]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send encodes text in mode and sends it on every send-enabled role.
// Invalid hex input is reported on the status line and nothing is sent.
func (e *Engine) Send(mode types.Mode, text string) (SendResult, error) {
	payload, err := codec.Encode(mode, text)
	if err != nil {
		e.Status.Set(err.Error())
		return SendResult{}, err
	}
	res := e.SendMessage(payload)
	return res, res.Err()
}

// SendMessage writes payload on every send-enabled role independently. A
// failure on one role does not stop the others.
func (e *Engine) SendMessage(payload []byte) SendResult {
	res := SendResult{Failed: make(map[types.Role]error)}

	for _, role := range sendRoles {
		cfg := e.Registry.Config(role)
		if !cfg.SendEnabled {
			continue
		}

		var err error
		if role.IsTCP() {
			err = e.sendTCP(role, payload)
		} else {
			err = e.sendUDP(role, cfg, payload)
		}

		if err != nil {
			res.Failed[role] = newOpError("send", role, "", err)
			logrus.WithFields(fields(role, "")).WithError(err).Debug("Send failed")
			continue
		}
		res.Sent = append(res.Sent, role)
		e.logf("Sent %d bytes via %s", len(payload), cfg.Name)
	}

	return res
}

func (e *Engine) sendTCP(role types.Role, payload []byte) error {
	conn := e.Registry.tcpConn(role)
	if conn == nil {
		return ErrNoHandle
	}
	conn.SetWriteDeadline(time.Now().Add(e.timeout))
	_, err := conn.Write(payload)
	return err
}

func (e *Engine) sendUDP(role types.Role, cfg types.EndpointConfig, payload []byte) error {
	conn, lastPeer := e.Registry.udpConn(role)
	if conn == nil && role == types.RoleUDPClient {
		var err error
		if conn, err = e.ensureUDPClient(); err != nil {
			return err
		}
	}
	if conn == nil {
		return ErrNoHandle
	}

	target, err := udpTarget(cfg, lastPeer)
	if err != nil {
		return err
	}
	_, err = conn.WriteToUDP(payload, target)
	return err
}

// udpTarget picks the configured remote, falling back to the last sender
// when no concrete remote host is configured.
func udpTarget(cfg types.EndpointConfig, lastPeer *net.UDPAddr) (*net.UDPAddr, error) {
	host := cfg.RemoteHost
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		if lastPeer == nil {
			return nil, fmt.Errorf("%s has no remote address", cfg.Name)
		}
		return lastPeer, nil
	}
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(cfg.Port)))
}

// ensureUDPClient opens an unbound client socket on first use, the way a
// datagram can be sent without an explicit bind.
func (e *Engine) ensureUDPClient() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	cur, done, installed := e.Registry.attachUDPIfEmpty(types.RoleUDPClient, conn)
	if !installed {
		conn.Close()
		return cur, nil
	}
	go e.readUDP(types.RoleUDPClient, conn, done)
	e.logf("UDP Client opened %s", conn.LocalAddr())
	return conn, nil
}
