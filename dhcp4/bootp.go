// Package dhcp4 implements a BOOTP/DHCP client state machine that emits and
// consumes whole Ethernet frames, so the rest of the translator sees only
// framed output. Option numbers and message types borrow
// github.com/insomniacslk/dhcp/dhcpv4's vocabulary; the wire encode/decode
// itself is hand-rolled field-by-field, never cast from a packed struct.
package dhcp4

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// OpCode is the BOOTP op field.
type OpCode uint8

const (
	BootRequest OpCode = 1
	BootReply   OpCode = 2
)

// MessageType mirrors dhcpv4.MessageType's numeric values (option 53).
type MessageType = dhcpv4.MessageType

const (
	Discover = dhcpv4.MessageTypeDiscover
	Offer    = dhcpv4.MessageTypeOffer
	Request  = dhcpv4.MessageTypeRequest
	Decline  = dhcpv4.MessageTypeDecline
	Ack      = dhcpv4.MessageTypeAck
	Nak      = dhcpv4.MessageTypeNak
	Release  = dhcpv4.MessageTypeRelease
	Inform   = dhcpv4.MessageTypeInform
)

// MagicCookie marks the start of the options region within a BOOTP packet.
const MagicCookie = 0x63825363

// fixed-field byte offsets within a BOOTP packet, per RFC 2131 figure 1.
const (
	offOp      = 0
	offHType   = 1
	offHLen    = 2
	offHops    = 3
	offXID     = 4
	offSecs    = 8
	offFlags   = 10
	offCIAddr  = 12
	offYIAddr  = 16
	offSIAddr  = 20
	offGIAddr  = 24
	offCHAddr  = 28  // 16 bytes, only first hlen used
	offSName   = 44  // 64 bytes
	offFile    = 108 // 128 bytes
	offCookie  = 236 // 4 bytes
	offOptions = 240

	// MinLen is the fixed-portion length before the options region.
	MinLen = offOptions

	broadcastFlag = 0x8000
)

// Packet is a memory-mapped BOOTP/DHCP packet.
type Packet []byte

// IsValid reports whether b is at least MinLen+4 bytes (four bytes of
// options region beyond the cookie) and carries the DHCP magic cookie
// immediately after the fixed BOOTP fields.
func (b Packet) IsValid() bool {
	if len(b) < MinLen+4 {
		return false
	}
	return binary.BigEndian.Uint32(b[offCookie:offCookie+4]) == MagicCookie
}

func (b Packet) Op() OpCode  { return OpCode(b[offOp]) }
func (b Packet) HType() byte { return b[offHType] }
func (b Packet) HLen() byte  { return b[offHLen] }

func (b Packet) XID() []byte {
	out := make([]byte, 4)
	copy(out, b[offXID:offXID+4])
	return out
}

func (b Packet) Flags() uint16   { return binary.BigEndian.Uint16(b[offFlags : offFlags+2]) }
func (b Packet) Broadcast() bool { return b.Flags()&broadcastFlag != 0 }

func (b Packet) CIAddr() net.IP { return dupIP(b[offCIAddr : offCIAddr+4]) }
func (b Packet) YIAddr() net.IP { return dupIP(b[offYIAddr : offYIAddr+4]) }
func (b Packet) SIAddr() net.IP { return dupIP(b[offSIAddr : offSIAddr+4]) }
func (b Packet) GIAddr() net.IP { return dupIP(b[offGIAddr : offGIAddr+4]) }

func (b Packet) CHAddr() net.HardwareAddr {
	n := int(b.HLen())
	if n <= 0 || n > 16 {
		n = 6
	}
	out := make(net.HardwareAddr, n)
	copy(out, b[offCHAddr:offCHAddr+n])
	return out
}

func (b Packet) Options() []byte { return b[offOptions:] }

// ParseOptions walks the TLV options region: skip PAD
// (0), stop at END (255), otherwise consume [type, length, value...].
// Malformed options (a length that would run past the end of the buffer)
// terminate parsing without error; already-parsed options are retained.
func (b Packet) ParseOptions() Options {
	out := make(Options, 8)
	region := b.Options()
	for i := 0; i < len(region); {
		code := region[i]
		if code == 0x00 { // PAD
			i++
			continue
		}
		if code == 0xff { // END
			break
		}
		if i+1 >= len(region) {
			break
		}
		length := int(region[i+1])
		start := i + 2
		end := start + length
		if end > len(region) {
			break
		}
		val := make([]byte, length)
		copy(val, region[start:end])
		out[code] = val
		i = end
	}
	return out
}

func dupIP(b []byte) net.IP {
	out := make(net.IP, 4)
	copy(out, b)
	return out
}

func putIP(dst []byte, ip net.IP) {
	ip4 := ip.To4()
	if ip4 == nil {
		return
	}
	copy(dst, ip4)
}

// Marshal builds a BOOTP packet into dst (grown if too small) with the
// given fixed fields and options, terminated by an END marker, written
// field-by-field rather than cast from a packed struct.
func Marshal(dst []byte, op OpCode, chAddr net.HardwareAddr, ciAddr, yiAddr net.IP, xid []byte, broadcast bool, opts Options) Packet {
	size := offOptions + opts.encodedLen() + 1 // +1 for END marker
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	for i := range dst {
		dst[i] = 0
	}

	dst[offOp] = byte(op)
	dst[offHType] = 1 // Ethernet
	dst[offHLen] = 6
	if len(xid) == 4 {
		copy(dst[offXID:offXID+4], xid)
	}
	if broadcast {
		binary.BigEndian.PutUint16(dst[offFlags:offFlags+2], broadcastFlag)
	}
	if ciAddr != nil {
		putIP(dst[offCIAddr:offCIAddr+4], ciAddr)
	}
	if yiAddr != nil {
		putIP(dst[offYIAddr:offYIAddr+4], yiAddr)
	}
	if chAddr != nil {
		copy(dst[offCHAddr:offCHAddr+len(chAddr)], chAddr)
	}
	binary.BigEndian.PutUint32(dst[offCookie:offCookie+4], MagicCookie)

	n := opts.encode(dst[offOptions:])
	dst[offOptions+n] = 0xff // END

	return Packet(dst)
}

func (p Packet) String() string {
	return fmt.Sprintf("op=%d xid=%x chaddr=%s ciaddr=%s yiaddr=%s bcast=%t",
		p.Op(), p.XID(), p.CHAddr(), p.CIAddr(), p.YIAddr(), p.Broadcast())
}
