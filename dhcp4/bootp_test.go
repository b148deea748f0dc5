package dhcp4

import (
	"net"
	"testing"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundtrip(t *testing.T) {
	chaddr := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	xid := []byte{0xde, 0xad, 0xbe, 0xef}

	opts := NewOptions()
	opts.SetMessageType(Discover)

	pkt := Marshal(nil, BootRequest, chaddr, nil, nil, xid, true, opts)

	require.True(t, pkt.IsValid())
	require.Equal(t, BootRequest, pkt.Op())
	require.Equal(t, xid, pkt.XID())
	require.True(t, pkt.Broadcast())
	require.Equal(t, chaddr, pkt.CHAddr())

	mt, ok := pkt.ParseOptions().MessageType()
	require.True(t, ok)
	require.Equal(t, Discover, mt)
}

func TestIsValidRejectsShortBuffer(t *testing.T) {
	require.False(t, Packet(make([]byte, 10)).IsValid())
}

func TestIsValidRejectsMissingCookie(t *testing.T) {
	buf := make([]byte, MinLen+4)
	require.False(t, Packet(buf).IsValid())
}

func TestParseOptionsStopsAtEnd(t *testing.T) {
	opts := NewOptions()
	opts.SetMessageType(Ack)
	opts.SetRequestedIPAddress(net.IPv4(192, 168, 1, 10))

	pkt := Marshal(nil, BootReply, nil, nil, net.IPv4(192, 168, 1, 10), []byte{1, 2, 3, 4}, false, opts)
	// A router option placed after END must not be parsed.
	pkt = append(pkt, dhcpv4.OptionRouter.Code(), 4, 192, 168, 1, 1)
	parsed := pkt.ParseOptions()

	_, ok := parsed.Router()
	require.False(t, ok)

	mt, ok := parsed.MessageType()
	require.True(t, ok)
	require.Equal(t, Ack, mt)

	ip, ok := parsed.RequestedIPAddress()
	require.True(t, ok)
	require.True(t, ip.Equal(net.IPv4(192, 168, 1, 10)))
}

func TestOptionsSubnetMaskAndRouter(t *testing.T) {
	opts := NewOptions()
	opts[dhcpv4.OptionSubnetMask.Code()] = []byte{255, 255, 255, 0}
	opts[dhcpv4.OptionRouter.Code()] = []byte{192, 168, 1, 1}

	mask, ok := opts.SubnetMask()
	require.True(t, ok)
	require.True(t, mask.Equal(net.IPv4(255, 255, 255, 0)))

	router, ok := opts.Router()
	require.True(t, ok)
	require.True(t, router.Equal(net.IPv4(192, 168, 1, 1)))
}

func TestDomainNameServersMultiple(t *testing.T) {
	opts := NewOptions()
	opts[dhcpv4.OptionDomainNameServer.Code()] = []byte{8, 8, 8, 8, 8, 8, 4, 4}

	dns, ok := opts.DomainNameServers()
	require.True(t, ok)
	require.Len(t, dns, 2)
	require.True(t, dns[0].Equal(net.IPv4(8, 8, 8, 8)))
	require.True(t, dns[1].Equal(net.IPv4(8, 8, 4, 4)))
}
