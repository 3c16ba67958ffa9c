package pcapreader

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/netprobe/codec"
	"github.com/samaelod/netprobe/types"
)

type packetSource interface {
	LinkType() layers.LinkType
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
}

func detectFormat(file *os.File) (format string, err error) {
	// Read first 4 bytes to check magic
	header := make([]byte, 4)
	n, err := io.ReadFull(file, header)
	if _, serr := file.Seek(0, io.SeekStart); serr != nil {
		return "", serr
	}
	if err != nil || n < 4 {
		return "pcap", nil // Default to pcap
	}

	// PCAPNG starts with the Section Header Block type 0x0A0D0D0A
	magic := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
	if magic == 0x0A0D0D0A {
		return "pcapng", nil
	}
	return "pcap", nil
}

func openPacketSource(file *os.File) (packetSource, error) {
	format, err := detectFormat(file)
	if err != nil {
		return nil, err
	}

	if format == "pcapng" {
		return pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(file)
}

// endpointKey identifies one side of a conversation.
type endpointKey struct {
	addr string
	port string
}

// segment is one transport payload with its direction.
type segment struct {
	src, dst endpointKey
	syn, ack bool
	payload  []byte
}

// ReadSuite turns the first TCP or UDP conversation in a capture into a
// raw test suite. Each client payload becomes one send with its bytes
// intact; each server payload becomes one expected line, escaped the way
// the receive log displays it. The client is the side that sent the first SYN, or the
// first payload when the capture starts mid-stream.
func ReadSuite(path string) (*types.Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	source, err := openPacketSource(file)
	if err != nil {
		return nil, err
	}

	packetSrc := gopacket.NewPacketSource(source, source.LinkType())

	var segs []segment
	for packet := range packetSrc.Packets() {
		if seg, ok := decodeSegment(packet); ok {
			segs = append(segs, seg)
		}
	}

	client, server, ok := pickConversation(segs)
	if !ok {
		return nil, fmt.Errorf("%s: no TCP or UDP conversation found", path)
	}

	script := &types.Script{Raw: true}
	for _, seg := range segs {
		if len(seg.payload) == 0 {
			continue
		}
		switch {
		case seg.src == client && seg.dst == server:
			script.Sends = append(script.Sends, string(seg.payload))
		case seg.src == server && seg.dst == client:
			script.Expects = append(script.Expects, codec.Escape(seg.payload))
		}
	}

	return script, nil
}

func decodeSegment(packet gopacket.Packet) (segment, bool) {
	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return segment{}, false
	}

	// Extract IP addresses properly based on layer type
	var srcIP, dstIP string
	if ipv4, ok := netLayer.(*layers.IPv4); ok {
		srcIP = ipv4.SrcIP.String()
		dstIP = ipv4.DstIP.String()
	} else if ipv6, ok := netLayer.(*layers.IPv6); ok {
		srcIP = ipv6.SrcIP.String()
		dstIP = ipv6.DstIP.String()
	} else {
		srcIP = netLayer.NetworkFlow().Src().String()
		dstIP = netLayer.NetworkFlow().Dst().String()
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		return segment{
			src:     endpointKey{srcIP, fmt.Sprint(uint16(tcp.SrcPort))},
			dst:     endpointKey{dstIP, fmt.Sprint(uint16(tcp.DstPort))},
			syn:     tcp.SYN,
			ack:     tcp.ACK,
			payload: tcp.Payload,
		}, true
	}
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		return segment{
			src:     endpointKey{srcIP, fmt.Sprint(uint16(udp.SrcPort))},
			dst:     endpointKey{dstIP, fmt.Sprint(uint16(udp.DstPort))},
			payload: udp.Payload,
		}, true
	}
	return segment{}, false
}

func pickConversation(segs []segment) (client, server endpointKey, ok bool) {
	for _, s := range segs {
		if s.syn && !s.ack {
			return s.src, s.dst, true
		}
	}
	for _, s := range segs {
		if len(s.payload) > 0 {
			return s.src, s.dst, true
		}
	}
	return endpointKey{}, endpointKey{}, false
}
