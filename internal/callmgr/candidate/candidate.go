// Package candidate models the radio/subscription endpoints available to
// originate a call and the device-wide state that qualifies them.
package candidate

import "fmt"

// ServiceTier classifies what service a candidate's radio currently has.
// Ordering is significant: a higher tier is always preferred.
type ServiceTier int

const (
	// TierOutOfService indicates no service at all.
	TierOutOfService ServiceTier = iota
	// TierEmergencyOnly indicates no general service, but emergency calls
	// can still be placed.
	TierEmergencyOnly
	// TierInService indicates full service.
	TierInService
)

// String returns the string representation of ServiceTier.
func (t ServiceTier) String() string {
	switch t {
	case TierOutOfService:
		return "OutOfService"
	case TierEmergencyOnly:
		return "EmergencyOnly"
	case TierInService:
		return "InService"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Usable reports whether the tier allows placing an emergency call.
func (t ServiceTier) Usable() bool {
	return t == TierInService || t == TierEmergencyOnly
}

// SimRank orders a candidate's SIM presence and lock state.
// Ordering is significant: a higher rank is always preferred.
type SimRank int

const (
	// SimAbsent indicates no SIM inserted and no active profile.
	SimAbsent SimRank = iota
	// SimLocked indicates a SIM that is PIN or PUK locked.
	SimLocked
	// SimReady indicates an unlocked, usable SIM.
	SimReady
)

// String returns the string representation of SimRank.
func (r SimRank) String() string {
	switch r {
	case SimAbsent:
		return "Absent"
	case SimLocked:
		return "Locked"
	case SimReady:
		return "Ready"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// SubscriptionNone marks a candidate without an assigned subscription
// (empty slot, eSIM with no active profile).
const SubscriptionNone = -1

// Capability bits for the access technologies a candidate's radio supports.
const (
	CapabilityGSM uint32 = 1 << iota
	CapabilityCDMA
	CapabilityUMTS
	CapabilityLTE
	CapabilityNR
)

// Candidate is one radio/subscription endpoint. It is a read-only snapshot:
// attributes are refreshed from the Set on demand and never cached across
// calls.
type Candidate struct {
	// Slot is the stable slot index identifying this endpoint.
	Slot int

	// SubscriptionID is the active subscription, or SubscriptionNone.
	SubscriptionID int

	// Tier is the current service tier reported by the radio.
	Tier ServiceTier

	// Sim is the SIM presence/lock rank.
	Sim SimRank

	// Capability is a bitmask of supported access technologies. Combining
	// technologies only sets additional bits, so a numerically larger mask
	// is always at least as capable.
	Capability uint32

	// EmergencySMSMode is set while an emergency SMS is in progress on
	// this endpoint.
	EmergencySMSMode bool

	// RadioOn reports whether the radio is powered (false in airplane mode).
	RadioOn bool

	// DefaultVoice and DefaultData mirror the device-wide user/carrier
	// default subscription configuration.
	DefaultVoice bool
	DefaultData  bool
}

// HasSubscription reports whether the candidate has an assigned subscription.
func (c Candidate) HasSubscription() bool {
	return c.SubscriptionID != SubscriptionNone
}

// Set enumerates the available candidates. Implementations return fresh
// snapshots; callers must not retain them across calls.
type Set interface {
	// Candidates returns all known candidates in slot order.
	Candidates() []Candidate

	// BySlot returns the candidate in the given slot.
	BySlot(slot int) (Candidate, bool)

	// BySubscription returns the candidate carrying the given subscription.
	BySubscription(subID int) (Candidate, bool)
}

// DeviceState exposes process-wide device configuration that is not a
// property of any single candidate.
type DeviceState interface {
	// DefaultVoiceSubscription returns the user default voice subscription,
	// or SubscriptionNone.
	DefaultVoiceSubscription() int

	// DefaultDataSubscription returns the user default data subscription,
	// or SubscriptionNone.
	DefaultDataSubscription() int

	// ConcurrentCallsSupported reports whether the device can hold active
	// calls on different subscriptions at the same time (DSDA).
	ConcurrentCallsSupported() bool
}
