package arp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	ourMAC  = net.HardwareAddr{0x02, 0x00, 0x5E, 0x00, 0x00, 0x01}
	ourIP   = net.IPv4(10, 0, 0, 2).To4()
	peerMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	peerIP  = net.IPv4(10, 0, 0, 1).To4()
)

func requestFrom(t *testing.T, srcMAC net.HardwareAddr, srcIP net.IP, dstIP net.IP) Packet {
	t.Helper()
	pkt, err := Marshal(nil, OperationRequest, srcMAC, srcIP, net.HardwareAddr{0, 0, 0, 0, 0, 0}, dstIP)
	require.NoError(t, err)
	return pkt
}

func replyFrom(t *testing.T, srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) Packet {
	t.Helper()
	pkt, err := Marshal(nil, OperationReply, srcMAC, srcIP, dstMAC, dstIP)
	require.NoError(t, err)
	return pkt
}

// S2 — ingress ARP request for our IP.
func TestHandleRequestForOurIPEnqueuesReply(t *testing.T) {
	e := NewEngine()
	req := requestFrom(t, peerMAC, peerIP, ourIP)

	_, ok := e.Handle(req, ourMAC, ourIP, nil)
	require.True(t, ok)
	require.True(t, e.HasPendingReply())
	require.EqualValues(t, 1, e.RequestsHandled)

	frame := e.PopReply()
	require.Len(t, frame, 14+HeaderLen)
	require.Equal(t, peerMAC, net.HardwareAddr(frame[0:6]))
	require.Equal(t, ourMAC, net.HardwareAddr(frame[6:12]))
	require.Equal(t, byte(0x08), frame[12])
	require.Equal(t, byte(0x06), frame[13])

	reply := Packet(frame[14:])
	require.Equal(t, OperationReply, reply.Operation())
	require.Equal(t, ourMAC, reply.SrcMAC())
	require.True(t, reply.SrcIP().Equal(ourIP))
	require.Equal(t, peerMAC, reply.DstMAC())
	require.True(t, reply.DstIP().Equal(peerIP))

	require.False(t, e.HasPendingReply())
}

// S3 — ARP dedup under flood.
func TestDuplicateRequestsDedup(t *testing.T) {
	e := NewEngine()
	req := requestFrom(t, peerMAC, peerIP, ourIP)

	for i := 0; i < 5; i++ {
		_, ok := e.Handle(req, ourMAC, ourIP, nil)
		require.True(t, ok)
	}

	require.EqualValues(t, 5, e.RequestsHandled)
	require.Equal(t, 1, e.QueueLen())
}

func TestQueueBoundedAtTen(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 20; i++ {
		ip := net.IPv4(10, 0, 0, byte(100+i))
		req := requestFrom(t, peerMAC, ip, ourIP)
		_, ok := e.Handle(req, ourMAC, ourIP, nil)
		require.True(t, ok)
	}
	require.LessOrEqual(t, e.QueueLen(), MaxQueueLen)
	require.Equal(t, MaxQueueLen, e.QueueLen())
}

func TestGatewayReplyLearnsMAC(t *testing.T) {
	e := NewEngine()
	reply := replyFrom(t, peerMAC, peerIP, ourMAC, ourIP)

	res, ok := e.Handle(reply, ourMAC, ourIP, peerIP)
	require.True(t, ok)
	require.Equal(t, peerMAC, res.LearnedGatewayMAC)
	require.EqualValues(t, 1, e.RepliesLearned)
}

func TestReplyFromNonGatewayIsIgnored(t *testing.T) {
	e := NewEngine()
	other := net.IPv4(10, 0, 0, 99)
	reply := replyFrom(t, peerMAC, other, ourMAC, ourIP)

	res, ok := e.Handle(reply, ourMAC, ourIP, peerIP)
	require.True(t, ok)
	require.Nil(t, res.LearnedGatewayMAC)
	require.EqualValues(t, 0, e.RepliesLearned)
}

func TestMalformedPacketDropped(t *testing.T) {
	e := NewEngine()
	short := make([]byte, 10)
	_, ok := e.Handle(short, ourMAC, ourIP, nil)
	require.False(t, ok)
}

func TestRequestWithoutOurIPIgnored(t *testing.T) {
	e := NewEngine()
	req := requestFrom(t, peerMAC, peerIP, ourIP)

	_, ok := e.Handle(req, ourMAC, nil, nil)
	require.True(t, ok)
	require.False(t, e.HasPendingReply())
}
