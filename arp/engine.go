package arp

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// MaxQueueLen bounds the number of unsolicited ARP replies the Engine will
// hold for the caller to drain. Replies beyond this bound are discarded,
// absorbing a flood of duplicate probes without unbounded growth.
const MaxQueueLen = 10

// Debug enables verbose per-packet logging through the logrus standard
// logger. It is a process-wide switch; an Engine has no logger of its own.
var Debug bool

// Engine holds the bounded outbound reply queue and its target-IP dedup set.
// It does not itself track our_ip/gateway_ip/gateway_mac — those live in the
// translator's state and are passed in on each call so the Engine stays a
// pure, allocation-light component with no knowledge of the wider translator.
type Engine struct {
	queue   [][]byte
	pending map[string]struct{} // keyed by target IP string form

	RequestsHandled uint64
	RepliesLearned  uint64
}

// NewEngine returns an empty Engine ready to use.
func NewEngine() *Engine {
	return &Engine{pending: make(map[string]struct{}, MaxQueueLen)}
}

// Result reports the side effects of handling one ingress ARP packet that
// the caller (the translator) must apply to its own state.
type Result struct {
	// LearnedGatewayMAC is non-nil when an ARP REPLY from gatewayIP carried
	// a sender MAC: the sender-MAC field of the REPLY itself, not the
	// Ethernet source address of the frame that carried it.
	LearnedGatewayMAC net.HardwareAddr
}

// Handle processes one ingress ARP packet (already known to have EtherType
// 0x0806). ourMAC and ourIP identify the host on whose behalf replies are
// composed; gatewayIP is the configured peer IP used to recognize gateway
// ARP replies. Handle returns ok=false for malformed packets and unknown
// opcodes, which the caller silently drops: no retries, no surfaced error
// for a malformed ARP packet. A well-formed REQUEST or REPLY that needs no
// action (not for ourIP, not from gatewayIP) returns ok=true with an empty
// Result.
func (e *Engine) Handle(frame []byte, ourMAC net.HardwareAddr, ourIP net.IP, gatewayIP net.IP) (res Result, ok bool) {
	pkt := Packet(frame)
	if !pkt.IsValid() {
		return Result{}, false
	}
	if Debug {
		log.WithFields(log.Fields{"arp": pkt.String()}).Debug("arp: ingress")
	}

	switch pkt.Operation() {
	case OperationReply:
		if gatewayIP != nil && pkt.SrcIP().Equal(gatewayIP) {
			mac := pkt.SrcMAC()
			e.RepliesLearned = satInc(e.RepliesLearned)
			return Result{LearnedGatewayMAC: mac}, true
		}
		return Result{}, true

	case OperationRequest:
		if ourIP == nil || !pkt.DstIP().Equal(ourIP) {
			return Result{}, true
		}
		e.RequestsHandled = satInc(e.RequestsHandled)
		reply, err := Marshal(nil, OperationReply, ourMAC, ourIP, pkt.SrcMAC(), pkt.SrcIP())
		if err != nil {
			return Result{}, true
		}
		e.enqueueReply(ourMAC, pkt.SrcMAC(), reply)
		return Result{}, true

	default:
		return Result{}, false
	}
}

// enqueueReply wraps an ARP reply packet in its 14-byte Ethernet envelope
// and applies the dedup/bound discipline: if the target IP already has a
// reply pending, the new one is discarded; if the queue is full, it is
// discarded; otherwise it is appended.
func (e *Engine) enqueueReply(srcMAC, dstMAC net.HardwareAddr, reply Packet) {
	// Dedup and eventual pop both key off the ARP target-IP field (offset
	// 24..28), which for a composed reply holds the original requester's
	// IP — see PopReply.
	key := reply.DstIP().String()
	if _, dup := e.pending[key]; dup {
		return
	}
	if len(e.queue) >= MaxQueueLen {
		return
	}

	frame := make([]byte, 14+len(reply))
	copy(frame[0:6], dstMAC)
	copy(frame[6:12], srcMAC)
	frame[12], frame[13] = 0x08, 0x06
	copy(frame[14:], reply)

	e.queue = append(e.queue, frame)
	e.pending[key] = struct{}{}
}

// HasPendingReply reports whether any composed reply awaits PopReply.
func (e *Engine) HasPendingReply() bool { return len(e.queue) > 0 }

// PopReply removes and returns the oldest queued reply frame, removing its
// dedup entry so a repeated request can enqueue a fresh reply later.
func (e *Engine) PopReply() []byte {
	if len(e.queue) == 0 {
		return nil
	}
	frame := e.queue[0]
	e.queue = e.queue[1:]

	// target IP lives at ARP offset 24..28, i.e. frame offset 14+24..14+28.
	targetIP := net.IP(frame[14+24 : 14+28]).String()
	delete(e.pending, targetIP)
	return frame
}

// QueueLen reports the number of replies currently queued, for tests and
// diagnostics.
func (e *Engine) QueueLen() int { return len(e.queue) }

func satInc(v uint64) uint64 {
	if v == ^uint64(0) {
		return v
	}
	return v + 1
}
