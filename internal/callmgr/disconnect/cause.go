// Package disconnect defines the disconnect-cause vocabulary surfaced to the
// call surface and the single factory translating collaborator-specific
// failure codes (radio, IMS, domain selection) into it.
package disconnect

import "fmt"

// Code identifies why a call ended.
type Code int

const (
	// NotDisconnected indicates the call is still in progress.
	NotDisconnected Code = iota
	// Local indicates a local hangup.
	Local
	// Remote indicates the remote party ended the call.
	Remote
	// Error indicates an unrecoverable failure (retry exhausted, internal
	// error).
	Error
	// Busy indicates the remote party was busy.
	Busy
	// OutOfService indicates no usable candidate had service.
	OutOfService
	// PowerOff indicates the radio could not be powered on.
	PowerOff
	// EmergencyTemporaryFailure indicates the domain selection layer
	// rejected the candidate with a temporary failure.
	EmergencyTemporaryFailure
	// EmergencyPermanentFailure indicates the domain selection layer
	// rejected the candidate with a permanent failure.
	EmergencyPermanentFailure
)

// String returns the string representation of Code.
func (c Code) String() string {
	switch c {
	case NotDisconnected:
		return "NotDisconnected"
	case Local:
		return "Local"
	case Remote:
		return "Remote"
	case Error:
		return "Error"
	case Busy:
		return "Busy"
	case OutOfService:
		return "OutOfService"
	case PowerOff:
		return "PowerOff"
	case EmergencyTemporaryFailure:
		return "EmergencyTemporaryFailure"
	case EmergencyPermanentFailure:
		return "EmergencyPermanentFailure"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Cause pairs a disconnect code with a human-readable reason.
type Cause struct {
	Code   Code
	Reason string
}

// None is the sentinel cause for a call that has not disconnected. It is the
// success value of the emergency-state tracker future.
var None = Cause{Code: NotDisconnected}

// IsDisconnected reports whether the cause represents an actual disconnect.
func (c Cause) IsDisconnected() bool {
	return c.Code != NotDisconnected
}

// String returns the string representation of Cause.
func (c Cause) String() string {
	if c.Reason == "" {
		return c.Code.String()
	}
	return fmt.Sprintf("%s (%s)", c.Code, c.Reason)
}

// FromRadioFailure translates a modem-level dial failure. A failure only
// becomes user visible once the retry rotation is exhausted, which is
// terminal whether the last failure was temporary or permanent.
func FromRadioFailure(message string) Cause {
	return Cause{Code: Error, Reason: message}
}

// FromSelectionRejection translates a domain-selection rejection reason into
// the cause used when candidate failover is exhausted.
func FromSelectionRejection(permanent bool) Cause {
	if permanent {
		return Cause{Code: EmergencyPermanentFailure, Reason: "domain selection rejected candidate"}
	}
	return Cause{Code: EmergencyTemporaryFailure, Reason: "domain selection rejected candidate"}
}

// LocalHangup is the cause recorded when the user hangs up before the call
// completes. Pending pipeline work observing it is discarded silently.
func LocalHangup() Cause {
	return Cause{Code: Local, Reason: "local hangup"}
}

// CrossSubscription is the cause for a call torn down because a new call
// was placed on another subscription and concurrent calls are not supported.
func CrossSubscription(emergency bool) Cause {
	if emergency {
		return Cause{Code: Local, Reason: "emergency call placed on another subscription"}
	}
	return Cause{Code: Local, Reason: "call placed on another subscription"}
}

// NoService is the cause for selection finding no usable candidate.
func NoService() Cause {
	return Cause{Code: OutOfService, Reason: "no usable candidate"}
}

// RadioUnavailable is the cause for a radio that failed to power on.
func RadioUnavailable() Cause {
	return Cause{Code: PowerOff, Reason: "radio power-on failed"}
}
