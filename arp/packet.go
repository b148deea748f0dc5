// Package arp implements the wire format and reply engine for the subset of
// RFC 826 the translator needs: parsing ingress ARP requests/replies and
// composing ARP replies on behalf of a host that only speaks IP.
package arp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Operation is the ARP opcode field.
type Operation uint16

const (
	OperationRequest Operation = 1
	OperationReply   Operation = 2
)

// HeaderLen is the length of an ARP packet for Ethernet/IPv4: 8 bytes of
// fixed header plus two 6-byte MACs and two 4-byte IPv4 addresses.
const HeaderLen = 8 + 2*6 + 2*4

// Packet is a memory-mapped ARP packet. Accessors copy out the field they
// return; the backing slice itself is never retained.
type Packet []byte

// IsValid reports whether b is long enough and carries the Ethernet/IPv4
// hardware and protocol type/length fields this package understands.
// Malformed ARP is not an error the core surfaces; callers
// use IsValid to decide whether to drop silently.
func (b Packet) IsValid() bool {
	if len(b) < HeaderLen {
		return false
	}
	if b.HType() != 1 {
		return false
	}
	if b.ProtoType() != 0x0800 {
		return false
	}
	if b.HLen() != 6 || b.PLen() != 4 {
		return false
	}
	return true
}

func (b Packet) HType() uint16     { return binary.BigEndian.Uint16(b[0:2]) }
func (b Packet) ProtoType() uint16 { return binary.BigEndian.Uint16(b[2:4]) }
func (b Packet) HLen() uint8       { return b[4] }
func (b Packet) PLen() uint8       { return b[5] }
func (b Packet) Operation() Operation {
	return Operation(binary.BigEndian.Uint16(b[6:8]))
}

func (b Packet) SrcMAC() net.HardwareAddr { return dupBytes(b[8:14]) }
func (b Packet) SrcIP() net.IP            { return net.IP(dupBytes(b[14:18])) }
func (b Packet) DstMAC() net.HardwareAddr { return dupBytes(b[18:24]) }
func (b Packet) DstIP() net.IP            { return net.IP(dupBytes(b[24:28])) }

func (b Packet) String() string {
	return fmt.Sprintf("op=%d srcMAC=%s srcIP=%s dstMAC=%s dstIP=%s",
		b.Operation(), b.SrcMAC(), b.SrcIP(), b.DstMAC(), b.DstIP())
}

func dupBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Marshal writes an ARP packet of operation op into dst, which must have at
// least HeaderLen bytes of capacity (nil is accepted and allocates). Source
// and destination addresses must be 6-byte MACs and 4-byte IPv4 addresses.
func Marshal(dst []byte, op Operation, srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) (Packet, error) {
	srcIP4, dstIP4 := srcIP.To4(), dstIP.To4()
	if len(srcMAC) != 6 || len(dstMAC) != 6 || srcIP4 == nil || dstIP4 == nil {
		return nil, fmt.Errorf("arp: invalid address length")
	}
	if cap(dst) < HeaderLen {
		dst = make([]byte, HeaderLen)
	}
	dst = dst[:HeaderLen]

	binary.BigEndian.PutUint16(dst[0:2], 1)      // hardware type: Ethernet
	binary.BigEndian.PutUint16(dst[2:4], 0x0800) // protocol type: IPv4
	dst[4] = 6                                   // hardware address length
	dst[5] = 4                                   // protocol address length
	binary.BigEndian.PutUint16(dst[6:8], uint16(op))
	copy(dst[8:14], srcMAC)
	copy(dst[14:18], srcIP4)
	copy(dst[18:24], dstMAC)
	copy(dst[24:28], dstIP4)
	return dst, nil
}
