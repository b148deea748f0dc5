package dhcp4

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	log "github.com/sirupsen/logrus"
)

// Debug enables verbose per-transition logging through the logrus standard
// logger. It is a process-wide switch; a Client has no logger of its own.
var Debug bool

// State is the DHCP initiator's current position in the client state
// machine: Idle, Selecting, Requesting or Bound.
type State int

const (
	Idle State = iota
	Selecting
	Requesting
	Bound
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Requesting:
		return "requesting"
	case Bound:
		return "bound"
	default:
		return "unknown"
	}
}

// DefaultLeaseTime is used when a server's ACK omits option 51 (lease time).
const DefaultLeaseTime = 86400 * time.Second

// Lease holds the parameters a server granted on ACK.
type Lease struct {
	ObtainedAt    time.Time
	LeaseTime     time.Duration
	RenewalTime   time.Duration // T1
	RebindingTime time.Duration // T2
	Address       net.IP
	SubnetMask    net.IP
	Router        net.IP
	DNS           []net.IP
	ServerID      net.IP
}

// IsExpired reports whether the lease's full duration has elapsed at now.
func (l Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.ObtainedAt.Add(l.LeaseTime))
}

// NeedsRenewal reports whether T1 has elapsed (RFC 2131 section 4.4.5).
func (l Lease) NeedsRenewal(now time.Time) bool {
	return !now.Before(l.ObtainedAt.Add(l.RenewalTime))
}

// NeedsRebinding reports whether T2 has elapsed.
func (l Lease) NeedsRebinding(now time.Time) bool {
	return !now.Before(l.ObtainedAt.Add(l.RebindingTime))
}

// Client drives the Idle -> Selecting -> Requesting -> Bound state machine.
// It performs no I/O and owns no clock of its own: every operation that
// needs "now" takes it as a parameter, and every operation that emits a
// packet returns the frame for the caller to send.
type Client struct {
	ourMAC net.HardwareAddr

	state       State
	xid         [4]byte
	offeredIP   net.IP
	offeredOpts Options
	serverMAC   net.HardwareAddr

	lease Lease
	bound bool
}

// NewClient returns a Client in the Idle state for the host identified by
// ourMAC.
func NewClient(ourMAC net.HardwareAddr) *Client {
	return &Client{ourMAC: ourMAC, state: Idle}
}

func (c *Client) State() State { return c.state }

// LeaseInfo returns the currently bound lease, if any.
func (c *Client) LeaseInfo() (Lease, bool) { return c.lease, c.bound }

// ServerMAC returns the MAC address of the server that last sent an
// OFFER/ACK, if known.
func (c *Client) ServerMAC() (net.HardwareAddr, bool) {
	if c.serverMAC == nil {
		return nil, false
	}
	return c.serverMAC, true
}

// Discover transitions Idle -> Selecting and returns a broadcast DHCPDISCOVER
// Ethernet frame. genXID generates a fresh transaction id; the Translator
// passes a wrapper around dhcpv4.GenerateTransactionID.
func (c *Client) Discover(genXID func() [4]byte) []byte {
	c.state = Selecting
	c.xid = genXID()
	c.offeredIP = nil
	c.serverMAC = nil

	opts := NewOptions()
	opts.SetMessageType(Discover)
	opts.SetParameterRequestList(
		dhcpv4.OptionSubnetMask,
		dhcpv4.OptionRouter,
		dhcpv4.OptionDomainNameServer,
		dhcpv4.OptionIPAddressLeaseTime,
	)

	bootp := Marshal(nil, BootRequest, c.ourMAC, nil, nil, c.xid[:], true, opts)
	return c.frame(broadcastMAC, bootp)
}

// Handle ingests a server response frame (already known to carry UDP/67->68
// BOOTP payload) and reports what the caller should do next. bootp is the
// BOOTP payload alone, srcMAC the Ethernet source of the frame it arrived
// in, now the current time for lease bookkeeping. The returned frame, if
// non-nil, is the next packet to send (a REQUEST following an OFFER).
func (c *Client) Handle(bootp Packet, srcMAC net.HardwareAddr, now time.Time) (reply []byte, bound bool) {
	if !bootp.IsValid() {
		return nil, false
	}
	xid := bootp.XID()
	if !xidEqual(xid, c.xid) {
		return nil, false // mismatched xid handled internally
	}

	opts := bootp.ParseOptions()
	mt, ok := opts.MessageType()
	if !ok {
		return nil, false
	}

	switch mt {
	case Offer:
		if c.state != Selecting {
			return nil, false
		}
		c.offeredIP = bootp.YIAddr()
		c.offeredOpts = opts
		c.serverMAC = dupMAC(srcMAC)
		c.state = Requesting
		return c.buildRequest(c.offeredIP, opts), false

	case Ack:
		if c.state != Requesting {
			return nil, false
		}
		c.applyLease(bootp.YIAddr(), opts, now)
		c.serverMAC = dupMAC(srcMAC)
		c.state = Bound
		c.bound = true
		return nil, true

	case Nak:
		if c.state != Requesting && c.state != Selecting {
			return nil, false
		}
		c.reset()
		return nil, false

	default:
		return nil, false
	}
}

func (c *Client) applyLease(addr net.IP, opts Options, now time.Time) {
	leaseSecs, ok := opts.IPAddressLeaseTime()
	leaseTime := DefaultLeaseTime
	if ok {
		leaseTime = time.Duration(leaseSecs) * time.Second
	}
	t1 := leaseTime / 2
	if secs, ok := opts.RenewalTimeValue(); ok {
		t1 = time.Duration(secs) * time.Second
	}
	t2 := leaseTime * 875 / 1000
	if secs, ok := opts.RebindingTimeValue(); ok {
		t2 = time.Duration(secs) * time.Second
	}

	mask, _ := opts.SubnetMask()
	router, _ := opts.Router()
	dns, _ := opts.DomainNameServers()
	serverID, _ := opts.ServerIdentifier()

	c.lease = Lease{
		ObtainedAt:    now,
		LeaseTime:     leaseTime,
		RenewalTime:   t1,
		RebindingTime: t2,
		Address:       addr,
		SubnetMask:    mask,
		Router:        router,
		DNS:           dns,
		ServerID:      serverID,
	}
}

// buildRequest composes the DHCPREQUEST following an OFFER (RFC 2131 section
// 4.3.2, the SELECTING case): requested-IP and server-id set, ciaddr zero,
// broadcast.
func (c *Client) buildRequest(requestedIP net.IP, offer Options) []byte {
	opts := NewOptions()
	opts.SetMessageType(Request)
	opts.SetRequestedIPAddress(requestedIP)
	if serverID, ok := offer.ServerIdentifier(); ok {
		opts.SetServerIdentifier(serverID)
	}

	bootp := Marshal(nil, BootRequest, c.ourMAC, nil, nil, c.xid[:], true, opts)
	return c.frame(broadcastMAC, bootp)
}

// Renew builds a unicast DHCPREQUEST addressed to the bound server, per RFC
// 2131 section 4.3.2's RENEWING case: ciaddr set, no requested-IP/server-id
// options. Returns an error if the client is not currently Bound.
func (c *Client) Renew() ([]byte, error) {
	if c.state != Bound || !c.bound {
		return nil, fmt.Errorf("dhcp4: renew requires bound state, got %s", c.state)
	}
	opts := NewOptions()
	opts.SetMessageType(Request)
	bootp := Marshal(nil, BootRequest, c.ourMAC, c.lease.Address, nil, c.xid[:], false, opts)

	dst := c.serverMAC
	if dst == nil {
		dst = broadcastMAC
	}
	return c.frame(dst, bootp), nil
}

// Rebind builds a broadcast DHCPREQUEST per RFC 2131 section 4.3.2's
// REBINDING case: ciaddr set, broadcast, no requested-IP/server-id options.
func (c *Client) Rebind() ([]byte, error) {
	if c.state != Bound || !c.bound {
		return nil, fmt.Errorf("dhcp4: rebind requires bound state, got %s", c.state)
	}
	opts := NewOptions()
	opts.SetMessageType(Request)
	bootp := Marshal(nil, BootRequest, c.ourMAC, c.lease.Address, nil, c.xid[:], true, opts)
	return c.frame(broadcastMAC, bootp), nil
}

// Decline rejects the most recently offered or bound address (e.g. because
// the caller's ARP engine found it already in use), emits a DHCPDECLINE and
// returns the client to Idle.
func (c *Client) Decline(reason error) []byte {
	if Debug {
		log.WithFields(log.Fields{"reason": reason}).Debug("dhcp4: declining offer")
	}
	addr := c.offeredIP
	if addr == nil {
		addr = c.lease.Address
	}

	opts := NewOptions()
	opts.SetMessageType(Decline)
	if addr != nil {
		opts.SetRequestedIPAddress(addr)
	}
	if serverID, ok := c.offeredOpts.ServerIdentifier(); ok {
		opts.SetServerIdentifier(serverID)
	}

	bootp := Marshal(nil, BootRequest, c.ourMAC, nil, nil, c.xid[:], true, opts)
	frame := c.frame(broadcastMAC, bootp)
	c.reset()
	return frame
}

// Release emits a DHCPRELEASE for the currently bound lease and returns to
// Idle. Unlike Decline, Release is the well-behaved client giving up a lease
// it is done with, not rejecting a bad offer.
func (c *Client) Release() ([]byte, error) {
	if c.state != Bound || !c.bound {
		return nil, fmt.Errorf("dhcp4: release requires bound state, got %s", c.state)
	}
	opts := NewOptions()
	opts.SetMessageType(Release)
	if c.lease.ServerID != nil {
		opts.SetServerIdentifier(c.lease.ServerID)
	}
	bootp := Marshal(nil, BootRequest, c.ourMAC, c.lease.Address, nil, c.xid[:], false, opts)

	dst := c.serverMAC
	if dst == nil {
		dst = broadcastMAC
	}
	frame := c.frame(dst, bootp)
	c.reset()
	return frame, nil
}

func (c *Client) reset() {
	c.state = Idle
	c.offeredIP = nil
	c.offeredOpts = nil
	c.serverMAC = nil
	c.bound = false
	c.lease = Lease{}
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// frame wraps a BOOTP payload in UDP/68->67, IPv4 0.0.0.0->255.255.255.255
// and Ethernet headers addressed to dstMAC: the initiator owns its own wire
// framing down to Ethernet rather than depending on a host IP stack. Every
// packet the client emits, including Renew and Release, uses these same
// ports and IP addresses; only the Ethernet destination varies.
func (c *Client) frame(dstMAC net.HardwareAddr, bootp Packet) []byte {
	udp := udpDatagram(68, 67, bootp)
	ip := ipv4Datagram(net.IPv4zero, net.IPv4bcast, 17, udp)

	frame := make([]byte, 14+len(ip))
	copy(frame[0:6], dstMAC)
	copy(frame[6:12], c.ourMAC)
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)
	copy(frame[14:], ip)
	return frame
}

func udpDatagram(srcPort, dstPort uint16, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(out[0:2], srcPort)
	binary.BigEndian.PutUint16(out[2:4], dstPort)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(out)))
	// checksum left as 0 (optional for IPv4 per RFC 768); the core does not
	// perform UDP/TCP checksum work.
	copy(out[8:], payload)
	return out
}

func ipv4Datagram(src, dst net.IP, proto byte, payload []byte) []byte {
	const headerLen = 20
	out := make([]byte, headerLen+len(payload))
	out[0] = 0x45 // version 4, IHL 5
	out[1] = 0x00 // DSCP/ECN
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	binary.BigEndian.PutUint16(out[4:6], 0) // identification
	binary.BigEndian.PutUint16(out[6:8], 0) // flags/fragment offset
	out[8] = 64                             // TTL
	out[9] = proto
	copy(out[12:16], src.To4())
	copy(out[16:20], dst.To4())

	sum := checksumIPv4Header(out[0:headerLen])
	binary.BigEndian.PutUint16(out[10:12], sum)

	copy(out[headerLen:], payload)
	return out
}

func xidEqual(a []byte, b [4]byte) bool {
	if len(a) != 4 {
		return false
	}
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2] && a[3] == b[3]
}

func dupMAC(m net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(m))
	copy(out, m)
	return out
}
