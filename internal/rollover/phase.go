package rollover

// Window boundaries on certificate age in seconds. They encode a one-hour
// poll interval and a roughly 24-hour DNS propagation delay; the exact
// values are part of the contract with the scheduler and must not drift.
const (
	freshBefore   = 3600  // age < freshBefore: certificate replaced since the last pass
	waitThrough   = 86400 // age <= waitThrough: propagation delay for the new association
	cutoverBefore = 90000 // age < cutoverBefore: one-hour window to finish the rollover
)

// Phase is the rollover state. It is recomputed from certificate age on every
// pass; the only state persisted between passes is the retiring tag inside
// the zone itself.
type Phase int

const (
	Fresh Phase = iota
	Wait
	Cutover
	Stale
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Wait:
		return "wait"
	case Cutover:
		return "cutover"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// PhaseFor maps a certificate age in whole seconds to its rollover phase.
// The four windows are mutually exclusive and exhaustive.
func PhaseFor(age int64) Phase {
	switch {
	case age < freshBefore:
		return Fresh
	case age <= waitThrough:
		return Wait
	case age < cutoverBefore:
		return Cutover
	default:
		return Stale
	}
}
