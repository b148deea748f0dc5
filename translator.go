// Package bridge implements a userspace L2<->L3 protocol translator: the
// core that lets an application holding a Layer-3 virtual interface (IP
// packets only) participate in a Layer-2 transport (Ethernet frames). It
// synthesizes and strips Ethernet framing, answers ARP on the host's
// behalf, learns the host's IP and the peer gateway's MAC, and drives an
// initiating DHCP conversation over the same synthetic channel.
//
// The Translator performs zero I/O and zero system calls; platform
// virtual-interface access, routing and DNS configuration are strictly the
// caller's responsibility.
package bridge

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	log "github.com/sirupsen/logrus"

	"github.com/arvidnor/l2bridge/arp"
	"github.com/arvidnor/l2bridge/dhcp4"
)

// Translator is the core protocol state machine. It is not internally
// synchronized; a caller sharing one instance across goroutines must
// serialize access externally.
type Translator struct {
	cfg    TranslatorConfig
	ourMAC net.HardwareAddr

	ourIP      net.IP
	gatewayIP  net.IP
	gatewayMAC net.HardwareAddr

	// lastGatewayLearn is the timestamp of the most recent gateway-MAC
	// update; it is not yet exposed via a query.
	lastGatewayLearn time.Time

	arp  *arp.Engine
	dhcp *dhcp4.Client

	dhcpQueue [][]byte

	stats Stats
	clock Clock
	log   *log.Entry

	closed bool
}

// Option configures a Translator at construction time.
type Option func(*Translator)

// WithClock overrides the default real-time Clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(t *Translator) { t.clock = c }
}

// WithLogger overrides the default *logrus.Entry used for diagnostic
// output.
func WithLogger(entry *log.Entry) Option {
	return func(t *Translator) { t.log = entry }
}

// New constructs a Translator from cfg. cfg.OurMAC must parse as a valid
// Ethernet address.
func New(cfg TranslatorConfig, opts ...Option) (*Translator, error) {
	mac, err := net.ParseMAC(cfg.OurMAC)
	if err != nil {
		return nil, fmt.Errorf("bridge: parse our_mac %q: %w", cfg.OurMAC, err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("bridge: our_mac %q is not a 6-octet Ethernet address", cfg.OurMAC)
	}

	t := &Translator{
		cfg:    cfg,
		ourMAC: mac,
		arp:    arp.NewEngine(),
		dhcp:   dhcp4.NewClient(mac),
		clock:  NewClock(),
		log:    log.NewEntry(log.New()),
	}
	for _, opt := range opts {
		opt(t)
	}
	if cfg.Verbose {
		t.log.Logger.SetLevel(log.DebugLevel)
	}
	return t, nil
}

// Close frees the translator's queues and DHCP/ARP state. The Go garbage
// collector reclaims the underlying buffers once the last reference drops;
// Close's job is to make that the Translator's own references, satisfying
// invariant 10 ("no leaks") in a GC'd language rather than an explicit
// free-list.
func (t *Translator) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.dhcpQueue = nil
	t.arp = nil
	t.dhcp = nil
	return nil
}

// SetOurIP manually assigns the host's IPv4 address, overriding any value
// learned from egress traffic or DHCP.
func (t *Translator) SetOurIP(ip net.IP) {
	t.ourIP = dupIP4(ip)
}

// SetGatewayIP records the peer gateway's IPv4 address, enabling the
// Learner's ingress hook and ARP-REPLY gateway-MAC learning.
func (t *Translator) SetGatewayIP(ip net.IP) {
	t.gatewayIP = dupIP4(ip)
}

// LearnedIP returns the host's current IPv4 address, if known.
func (t *Translator) LearnedIP() (net.IP, bool) {
	if t.ourIP == nil {
		return nil, false
	}
	return t.ourIP, true
}

// GatewayMAC returns the learned peer gateway MAC, if known.
func (t *Translator) GatewayMAC() (net.HardwareAddr, bool) {
	if t.gatewayMAC == nil {
		return nil, false
	}
	return t.gatewayMAC, true
}

// HasPendingARPReply reports whether PopARPReply would return a frame.
func (t *Translator) HasPendingARPReply() bool {
	return !t.closed && t.arp.HasPendingReply()
}

// PopARPReply removes and returns the oldest queued ARP reply frame,
// transferring ownership to the caller.
func (t *Translator) PopARPReply() []byte {
	if t.closed {
		return nil
	}
	return t.arp.PopReply()
}

// HasPendingDHCP reports whether PopDHCPPacket would return a frame.
func (t *Translator) HasPendingDHCP() bool {
	return len(t.dhcpQueue) > 0
}

// PopDHCPPacket removes and returns the oldest queued DHCP frame.
func (t *Translator) PopDHCPPacket() []byte {
	if len(t.dhcpQueue) == 0 {
		return nil
	}
	frame := t.dhcpQueue[0]
	t.dhcpQueue = t.dhcpQueue[1:]
	return frame
}

// Stats returns a snapshot of the translator's counters.
func (t *Translator) Stats() Stats {
	s := t.stats
	if t.arp != nil {
		s.ArpRequestsHandled = t.arp.RequestsHandled
		s.ArpRepliesLearned = t.arp.RepliesLearned
	}
	return s
}

// LeaseInfo returns the currently bound DHCP lease, if any.
func (t *Translator) LeaseInfo() (dhcp4.Lease, bool) {
	if t.dhcp == nil {
		return dhcp4.Lease{}, false
	}
	return t.dhcp.LeaseInfo()
}

// DHCPServerMAC returns the MAC address of the DHCP server that last sent
// an OFFER/ACK, if known.
func (t *Translator) DHCPServerMAC() (net.HardwareAddr, bool) {
	if t.dhcp == nil {
		return nil, false
	}
	return t.dhcp.ServerMAC()
}

// StartDHCP begins a DHCP conversation: Idle -> Selecting, emitting a
// DISCOVER onto the DHCP queue.
func (t *Translator) StartDHCP() error {
	if t.closed {
		return ErrClosed
	}
	frame := t.dhcp.Discover(genXID)
	t.enqueueDHCP(frame)
	return nil
}

// ReleaseDHCP emits a DHCPRELEASE for the current lease and returns to
// Idle.
func (t *Translator) ReleaseDHCP() error {
	if t.closed {
		return ErrClosed
	}
	frame, err := t.dhcp.Release()
	if err != nil {
		return err
	}
	t.enqueueDHCP(frame)
	return nil
}

// Renew emits a unicast DHCPREQUEST renewing the current lease.
func (t *Translator) Renew() error {
	if t.closed {
		return ErrClosed
	}
	frame, err := t.dhcp.Renew()
	if err != nil {
		return err
	}
	t.enqueueDHCP(frame)
	return nil
}

// Rebind emits a broadcast DHCPREQUEST rebinding the current lease.
func (t *Translator) Rebind() error {
	if t.closed {
		return ErrClosed
	}
	frame, err := t.dhcp.Rebind()
	if err != nil {
		return err
	}
	t.enqueueDHCP(frame)
	return nil
}

// Decline rejects the most recently offered or bound address, emits a
// DHCPDECLINE and returns the DHCP state machine (and our_ip) to Idle.
func (t *Translator) Decline(reason error) error {
	if t.closed {
		return ErrClosed
	}
	frame := t.dhcp.Decline(reason)
	t.enqueueDHCP(frame)
	t.ourIP = nil
	return nil
}

func (t *Translator) enqueueDHCP(frame []byte) {
	t.dhcpQueue = append(t.dhcpQueue, frame)
}

func genXID() [4]byte {
	id, err := dhcpv4.GenerateTransactionID()
	if err != nil {
		return [4]byte{}
	}
	var out [4]byte
	copy(out[:], id[:])
	return out
}

// handleDHCPResponse inspects an ingress IPv4 payload for a BOOTP response
// addressed to the DHCP client port and, if found, feeds it to the client
// state machine, enqueuing any resulting packet and adopting the ACKed
// address as our_ip.
func (t *Translator) handleDHCPResponse(ipPacket []byte, srcMAC net.HardwareAddr) {
	if t.dhcp == nil || t.dhcp.State() == dhcp4.Idle {
		return
	}
	if len(ipPacket) < 20 {
		return
	}
	ihl := int(ipPacket[0]&0x0f) * 4
	if ihl < 20 || len(ipPacket) < ihl+8 {
		return
	}
	if ipPacket[9] != 17 { // protocol: UDP
		return
	}
	udp := ipPacket[ihl:]
	if binary.BigEndian.Uint16(udp[2:4]) != 68 { // dst port: DHCP client
		return
	}

	bootp := dhcp4.Packet(udp[8:])
	reply, bound := t.dhcp.Handle(bootp, srcMAC, t.clock.Now())
	if bound {
		if lease, ok := t.dhcp.LeaseInfo(); ok {
			t.ourIP = lease.Address
			t.log.WithFields(log.Fields{"ip": lease.Address, "lease": lease.LeaseTime}).Debug("bridge: dhcp bound")
		}
	}
	if reply != nil {
		t.enqueueDHCP(reply)
	}
}
