package bridge

// Stats holds the translator's monotonic, saturating counters.
// ArpRequestsHandled/ArpRepliesLearned are owned by the ARP engine and
// copied in by Stats(); L2ToL3/L3ToL2 are owned directly by the Translator.
type Stats struct {
	L2ToL3             uint64
	L3ToL2             uint64
	ArpRequestsHandled uint64
	ArpRepliesLearned  uint64
}

func satInc(v uint64) uint64 {
	if v == ^uint64(0) {
		return v
	}
	return v + 1
}

func (s *Stats) incL2ToL3() { s.L2ToL3 = satInc(s.L2ToL3) }
func (s *Stats) incL3ToL2() { s.L3ToL2 = satInc(s.L3ToL2) }
