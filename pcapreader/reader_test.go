package pcapreader_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netprobe/pcapreader"
)

var (
	clientIP = net.IP{10, 0, 0, 1}
	serverIP = net.IP{10, 0, 0, 2}
	otherIP  = net.IP{10, 0, 0, 9}
)

type frame struct {
	src, dst         net.IP
	srcPort, dstPort uint16
	udp              bool
	syn, ack         bool
	payload          string
}

func serialize(t *testing.T, f frame) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: f.src, DstIP: f.dst}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	if f.udp {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.srcPort), DstPort: layers.UDPPort(f.dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(f.payload))
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(f.srcPort),
			DstPort: layers.TCPPort(f.dstPort),
			SYN:     f.syn,
			ACK:     f.ack,
			Window:  65535,
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(f.payload))
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames []frame) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.pcap")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := pcapgo.NewWriter(file)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Unix(1700000000, 0)
	for i, f := range frames {
		data := serialize(t, f)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestReadSuite(t *testing.T) {
	tcpFrames := []frame{
		{src: serverIP, dst: clientIP, srcPort: 7000, dstPort: 40001, ack: true, payload: "banner"},
		{src: clientIP, dst: serverIP, srcPort: 40000, dstPort: 7000, syn: true},
		{src: serverIP, dst: clientIP, srcPort: 7000, dstPort: 40000, syn: true, ack: true},
		{src: clientIP, dst: serverIP, srcPort: 40000, dstPort: 7000, ack: true, payload: "PING\r\n"},
		{src: serverIP, dst: clientIP, srcPort: 7000, dstPort: 40000, ack: true, payload: "PONG\r\n"},
		{src: otherIP, dst: serverIP, srcPort: 41000, dstPort: 7000, ack: true, payload: "noise"},
		{src: clientIP, dst: serverIP, srcPort: 40000, dstPort: 7000, ack: true, payload: "A\r\nB\n"},
		{src: serverIP, dst: clientIP, srcPort: 7000, dstPort: 40000, ack: true, payload: "OK"},
	}
	udpFrames := []frame{
		{src: clientIP, dst: serverIP, srcPort: 5353, dstPort: 9000, udp: true, payload: "hello"},
		{src: serverIP, dst: clientIP, srcPort: 9000, dstPort: 5353, udp: true, payload: "\x01\x80"},
	}

	tests := []struct {
		name        string
		frames      []frame
		wantSends   []string
		wantExpects []string
	}{
		{"tcp_handshake", tcpFrames, []string{"PING\r\n", "A\r\nB\n"}, []string{`PONG\xd\xa`, "OK"}},
		{"udp_first_sender", udpFrames, []string{"hello"}, []string{`\x1\x80`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := pcapreader.ReadSuite(writeCapture(t, tt.frames))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSends, script.Sends)
			assert.Equal(t, tt.wantExpects, script.Expects)
			assert.True(t, script.Raw)
		})
	}
}

func TestReadSuiteErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := pcapreader.ReadSuite(filepath.Join(t.TempDir(), "absent.pcap"))
		assert.Error(t, err)
	})

	t.Run("no_conversation", func(t *testing.T) {
		_, err := pcapreader.ReadSuite(writeCapture(t, nil))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.pcap")
		require.NoError(t, os.WriteFile(path, []byte("not a capture"), 0600))
		_, err := pcapreader.ReadSuite(path)
		assert.Error(t, err)
	})
}
