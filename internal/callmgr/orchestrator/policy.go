package orchestrator

import (
	"log/slog"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/disconnect"
)

// maybeDisconnectCallsOnOtherSubs tears down live calls on subscriptions
// other than the new call's, since the radio can only carry one
// subscription's voice path at a time. Exempt are:
//
//   - devices supporting concurrent calls across subscriptions (DSDA)
//   - existing emergency calls, which always win over the new call
//   - external calls, which live on another device
//
// Runs on the serialized queue as part of origination, before the new call
// touches the radio.
func (o *Orchestrator) maybeDisconnectCallsOnOtherSubs(newConn *Connection) {
	if o.cfg.Device != nil && o.cfg.Device.ConcurrentCallsSupported() {
		return
	}
	newSub := newConn.Candidate().SubscriptionID
	if newSub == candidate.SubscriptionNone {
		return
	}
	for _, c := range o.Connections() {
		if c == newConn || c.State().IsTerminal() {
			continue
		}
		sub := c.Candidate().SubscriptionID
		if sub == newSub || sub == candidate.SubscriptionNone {
			continue
		}
		if c.IsEmergency() || c.IsExternal() {
			continue
		}
		slog.Info("[Orchestrator] disconnecting call on other subscription",
			"call_id", c.ID(),
			"sub", sub,
			"new_call_id", newConn.ID(),
			"new_sub", newSub,
		)
		o.disconnect(c, disconnect.CrossSubscription(newConn.IsEmergency()))
	}
}
