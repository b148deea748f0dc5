package dhcp4

import (
	"encoding/binary"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Options is a decoded DHCP options region, keyed by the raw option code
// byte rather than the library's dhcpv4.OptionCode interface: named codes
// (dhcpv4.OptionSubnetMask, ...) and dhcpv4.GenericOptionCode(n) are
// distinct concrete types satisfying that interface, so a map keyed on the
// interface itself would silently split one option across two keys
// depending on which constructor produced the key. Keying on the decoded
// uint8, as upstream dhcpv4.Options itself does, avoids that trap. Each
// value holds the raw option bytes; typed accessors below interpret them.
type Options map[uint8][]byte

// NewOptions returns an empty, ready-to-populate option set.
func NewOptions() Options { return make(Options, 8) }

func (o Options) MessageType() (MessageType, bool) {
	v, ok := o[dhcpv4.OptionDHCPMessageType.Code()]
	if !ok || len(v) != 1 {
		return 0, false
	}
	return MessageType(v[0]), true
}

func (o Options) SetMessageType(mt MessageType) {
	o[dhcpv4.OptionDHCPMessageType.Code()] = []byte{byte(mt)}
}

func (o Options) RequestedIPAddress() (net.IP, bool) {
	return o.ipOption(dhcpv4.OptionRequestedIPAddress)
}

func (o Options) SetRequestedIPAddress(ip net.IP) {
	o.setIPOption(dhcpv4.OptionRequestedIPAddress, ip)
}

func (o Options) ServerIdentifier() (net.IP, bool) {
	return o.ipOption(dhcpv4.OptionServerIdentifier)
}

func (o Options) SetServerIdentifier(ip net.IP) {
	o.setIPOption(dhcpv4.OptionServerIdentifier, ip)
}

func (o Options) SubnetMask() (net.IP, bool) {
	return o.ipOption(dhcpv4.OptionSubnetMask)
}

func (o Options) Router() (net.IP, bool) {
	return o.ipOption(dhcpv4.OptionRouter)
}

// DomainNameServers returns the list of DNS server addresses carried in
// option 6, each address consuming 4 bytes as RFC 2132 section 3.8 requires.
func (o Options) DomainNameServers() ([]net.IP, bool) {
	v, ok := o[dhcpv4.OptionDomainNameServer.Code()]
	if !ok || len(v) == 0 || len(v)%4 != 0 {
		return nil, false
	}
	out := make([]net.IP, 0, len(v)/4)
	for i := 0; i < len(v); i += 4 {
		ip := make(net.IP, 4)
		copy(ip, v[i:i+4])
		out = append(out, ip)
	}
	return out, true
}

// IPAddressLeaseTime returns option 51, the lease time in seconds.
func (o Options) IPAddressLeaseTime() (uint32, bool) {
	return o.uint32Option(dhcpv4.OptionIPAddressLeaseTime)
}

func (o Options) SetIPAddressLeaseTime(secs uint32) {
	o.setUint32Option(dhcpv4.OptionIPAddressLeaseTime, secs)
}

// RenewalTimeValue returns option 58 (T1), RebindingTimeValue option 59 (T2).
func (o Options) RenewalTimeValue() (uint32, bool) {
	return o.uint32Option(dhcpv4.OptionRenewTimeValue)
}

func (o Options) RebindingTimeValue() (uint32, bool) {
	return o.uint32Option(dhcpv4.OptionRebindingTimeValue)
}

func (o Options) SetParameterRequestList(codes ...dhcpv4.OptionCode) {
	v := make([]byte, len(codes))
	for i, c := range codes {
		v[i] = byte(c.Code())
	}
	o[dhcpv4.OptionParameterRequestList.Code()] = v
}

func (o Options) ipOption(code dhcpv4.OptionCode) (net.IP, bool) {
	v, ok := o[code.Code()]
	if !ok || len(v) != 4 {
		return nil, false
	}
	ip := make(net.IP, 4)
	copy(ip, v)
	return ip, true
}

func (o Options) setIPOption(code dhcpv4.OptionCode, ip net.IP) {
	ip4 := ip.To4()
	if ip4 == nil {
		return
	}
	v := make([]byte, 4)
	copy(v, ip4)
	o[code.Code()] = v
}

func (o Options) uint32Option(code dhcpv4.OptionCode) (uint32, bool) {
	v, ok := o[code.Code()]
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (o Options) setUint32Option(code dhcpv4.OptionCode, val uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, val)
	o[code.Code()] = v
}

// encodedLen returns the byte length of the TLV encoding of o, excluding the
// final END marker; the caller appends that separately since it closes the
// option region regardless of which options are present.
func (o Options) encodedLen() int {
	n := 0
	for _, v := range o {
		n += 2 + len(v)
	}
	return n
}

// encode writes o as [code, len, value...] triples into dst in ascending
// option-code order, returning the number of bytes written. dst must have
// at least encodedLen() bytes of room.
func (o Options) encode(dst []byte) int {
	// Deterministic order keeps Marshal output byte-stable across calls with
	// the same option set, which table-driven tests rely on.
	codes := make([]int, 0, len(o))
	for c := range o {
		codes = append(codes, int(c))
	}
	sortInts(codes)

	n := 0
	for _, c := range codes {
		v := o[uint8(c)]
		dst[n] = byte(c)
		dst[n+1] = byte(len(v))
		copy(dst[n+2:], v)
		n += 2 + len(v)
	}
	return n
}

// sortInts is a tiny insertion sort; the option count per packet is small
// enough that pulling in sort.Ints for this isn't worth the import.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
