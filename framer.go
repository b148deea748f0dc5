package bridge

import (
	"fmt"
	"net"

	"github.com/mdlayher/ethernet"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IPToEthernet is the egress operation: classify the IP version, choose a
// destination MAC, and prepend a 14-byte Ethernet header. The IP payload
// itself is carried verbatim, no mutation, no checksum work.
func (t *Translator) IPToEthernet(ipPacket []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if len(ipPacket) < 1 {
		return nil, ErrInvalidPacket
	}

	var etherType ethernet.EtherType
	switch ipPacket[0] >> 4 {
	case 4:
		etherType = ethernet.EtherTypeIPv4
	case 6:
		etherType = ethernet.EtherTypeIPv6
	default:
		return nil, ErrInvalidPacket
	}

	t.learnOurIP(ipPacket)

	dst := broadcastMAC
	if etherType == ethernet.EtherTypeIPv4 && t.gatewayMAC != nil {
		dst = t.gatewayMAC
	}

	f := &ethernet.Frame{
		Destination: dst,
		Source:      t.ourMAC,
		EtherType:   etherType,
		Payload:     ipPacket,
	}
	out, err := f.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal ethernet frame: %w", err)
	}
	// MarshalBinary zero-pads short payloads to the 46-byte Ethernet
	// minimum; cut that padding so the frame is exactly len(ipPacket)+14.
	out = out[:14+len(ipPacket)]
	t.stats.incL3ToL2()
	return out, nil
}

// EthernetToIP is the ingress operation: strip the Ethernet header and
// dispatch by EtherType. ARP frames are consumed by the ARP engine (when
// handle_arp is set) or silently discarded; IPv4/IPv6 frames run the
// Learner's ingress hook and DHCP ingestion before the payload is returned
// as an owned copy.
func (t *Translator) EthernetToIP(frame []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if len(frame) < 14 {
		return nil, ErrInvalidPacket
	}

	f := new(ethernet.Frame)
	if err := f.UnmarshalBinary(frame); err != nil {
		t.log.WithError(err).Debug("bridge: dropping unparseable ethernet frame")
		return nil, fmt.Errorf("bridge: unmarshal ethernet frame: %w", err)
	}

	switch f.EtherType {
	case ethernet.EtherTypeARP:
		if t.cfg.HandleARP {
			t.handleARP(f.Payload)
		}
		return nil, nil

	case ethernet.EtherTypeIPv4:
		t.learnGatewayMAC(f.Payload, f.Source)
		t.handleDHCPResponse(f.Payload, f.Source)
		return t.copyPayload(f.Payload), nil

	case ethernet.EtherTypeIPv6:
		return t.copyPayload(f.Payload), nil

	default:
		return nil, nil
	}
}

func (t *Translator) copyPayload(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	t.stats.incL2ToL3()
	return out
}

// handleARP delegates an ARP payload (28 bytes, without the Ethernet
// header) to the ARP engine and applies any gateway-MAC learning it
// reports.
func (t *Translator) handleARP(arpPayload []byte) {
	res, ok := t.arp.Handle(arpPayload, t.ourMAC, t.ourIP, t.gatewayIP)
	if !ok {
		return
	}
	if res.LearnedGatewayMAC != nil {
		t.gatewayMAC = res.LearnedGatewayMAC
		t.lastGatewayLearn = t.clock.Now()
	}
}
