// Package radiolink defines the contract between the call manager and the
// radio/modem layer: the dial operation, the failure taxonomy the modem
// reports, and the radio power-on helper.
package radiolink

import (
	"context"
	"errors"
	"fmt"

	"github.com/sebas/towerline/internal/callmgr/candidate"
)

// ExtraDialDomain is the DialArgs extras key carrying the resolved network
// domain for a call that went through domain selection. Its value is a
// Domain constant from the domain package (CS or PS).
const ExtraDialDomain = "dial.domain"

// Precise disconnect codes reported by the radio on a failed attempt.
const (
	PreciseErrorUnspecified = iota
	PreciseNormalClearing
	PreciseBusy
	PreciseNoRouteToDestination
	PreciseTemporaryFailure
	PreciseEmergencyTemp
	PreciseEmergencyPerm
)

// ReasonInfo carries the IMS-layer reason attached to a failed attempt, when
// the failure originated on the IP-multimedia path.
type ReasonInfo struct {
	Code int
}

// ReasonSIPAlternateEmergencyCall signals that an in-progress IMS call must
// be redialed as an emergency call.
const ReasonSIPAlternateEmergencyCall = 1514

// DialArgs carries per-attempt dial parameters.
type DialArgs struct {
	// IsEmergency marks the attempt as an emergency call.
	IsEmergency bool

	// Category is the optional emergency service category (0 when unset).
	Category int

	// IsTestEmergency marks a test emergency number dial.
	IsTestEmergency bool

	// Extras carries auxiliary hints keyed by the Extra* constants.
	Extras map[string]any
}

// Domain returns the domain hint from Extras, if present.
func (a DialArgs) Domain() (int, bool) {
	v, ok := a.Extras[ExtraDialDomain]
	if !ok {
		return 0, false
	}
	d, ok := v.(int)
	return d, ok
}

// CallHandle represents an attempt accepted by the radio. It is opaque to
// the call manager beyond termination.
type CallHandle interface {
	// ID identifies the attempt within the radio layer.
	ID() string

	// Hangup releases the attempt locally.
	Hangup(ctx context.Context) error
}

// CallStateError is returned by Dial when the modem refuses or drops the
// attempt. Permanent failures remove the candidate from the retry rotation;
// temporary ones rotate it to the back.
type CallStateError struct {
	Permanent bool
	Precise   int
	Reason    *ReasonInfo
	Message   string
}

// Error returns the error message.
func (e *CallStateError) Error() string {
	kind := "temporary"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("dial failed (%s, precise=%d): %s", kind, e.Precise, e.Message)
}

// AsCallStateError unwraps err into a CallStateError, if it is one.
func AsCallStateError(err error) (*CallStateError, bool) {
	var cse *CallStateError
	if errors.As(err, &cse) {
		return cse, true
	}
	return nil, false
}

// Radio is the dial contract to the radio layer.
type Radio interface {
	// Dial places a call on the given candidate. It returns a handle on
	// success or a CallStateError on modem failure. Other errors are fatal
	// for the attempt.
	Dial(ctx context.Context, cand candidate.Candidate, address string, args DialArgs) (CallHandle, error)
}

// RadioOnStateListener is the callback contract for radio power-on gating.
type RadioOnStateListener interface {
	// IsOkToCall is re-evaluated as the candidate's service state changes
	// while the radio is powering on. Returning true releases the pending
	// dial.
	IsOkToCall(cand candidate.Candidate, tier candidate.ServiceTier) bool

	// OnComplete fires once when powering finishes or times out.
	OnComplete(success bool, radioReady bool)
}

// RadioOnHelper drives radio power-on sequencing (e.g. leaving airplane
// mode) and reports progress to the listener. Timeout policy belongs to the
// implementation, not the caller.
type RadioOnHelper interface {
	TriggerRadioOnAndListen(l RadioOnStateListener, forEmergency bool, cand candidate.Candidate, isTest bool)
}
