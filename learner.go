package bridge

import "net"

var linkLocalBlock = &net.IPNet{
	IP:   net.IPv4(169, 254, 0, 0).To4(),
	Mask: net.CIDRMask(16, 32),
}

// learnOurIP is the egress hook: adopt the source address of an outbound
// IPv4 packet as our_ip, once, rejecting link-local addresses that arise
// before a real address is assigned.
func (t *Translator) learnOurIP(ipPacket []byte) {
	if !t.cfg.LearnIP || t.ourIP != nil {
		return
	}
	if len(ipPacket) < 20 || ipPacket[0]>>4 != 4 {
		return
	}
	src := net.IP(ipPacket[12:16])
	if linkLocalBlock.Contains(src) {
		return
	}
	t.ourIP = dupIP4(src)
}

// learnGatewayMAC is the ingress hook: any ingress IPv4 packet sourced by
// the configured gateway reveals its MAC, independent of ARP. Peers that
// never speak ARP still give themselves away this way.
func (t *Translator) learnGatewayMAC(ipPacket []byte, srcMAC net.HardwareAddr) {
	if !t.cfg.LearnGatewayMAC || t.gatewayIP == nil {
		return
	}
	if len(ipPacket) < 20 || ipPacket[0]>>4 != 4 {
		return
	}
	src := net.IP(ipPacket[12:16])
	if !src.Equal(t.gatewayIP) {
		return
	}
	if t.gatewayMAC != nil && macEqual(t.gatewayMAC, srcMAC) {
		return
	}
	t.gatewayMAC = dupMAC(srcMAC)
	t.lastGatewayLearn = t.clock.Now()
}

func dupIP4(ip net.IP) net.IP {
	out := make(net.IP, 4)
	copy(out, ip.To4())
	return out
}

func dupMAC(m net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(m))
	copy(out, m)
	return out
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
