package engine

// claimSet tracks which devices have already been commanded during the
// current cycle. The first rule to act on a device wins; because rules
// are processed in priority order, later (lower-priority) rules lose
// the arbitration. The set is cycle-local and discarded afterwards.
type claimSet map[string]struct{}

func newClaimSet() claimSet {
	return make(claimSet)
}

// Has reports whether the device was already claimed this cycle.
func (s claimSet) Has(deviceID string) bool {
	_, ok := s[deviceID]
	return ok
}

// Claim marks the device as acted upon for the rest of the cycle.
func (s claimSet) Claim(deviceID string) {
	s[deviceID] = struct{}{}
}
