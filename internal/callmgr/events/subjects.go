package events

import "fmt"

// Subject naming conventions.
//
// Hierarchy:
//   towerline.calls.<call_uuid>.<event_suffix>  - Per-call events
//   towerline.candidates.<slot>                 - Candidate state events
//
// Wildcard subscriptions:
//   towerline.calls.>                           - All call events
//   towerline.calls.*.disconnected              - All disconnect events
//   towerline.calls.<call_uuid>.*               - All events for one call

const (
	// SubjectPrefix is the root of all towerline subjects
	SubjectPrefix = "towerline"

	// Call event subjects
	SubjectCalls                = SubjectPrefix + ".calls"
	SubjectCallOriginated       = "originated"
	SubjectCallDialing          = "dialing"
	SubjectCallCandidateChanged = "candidate_changed"
	SubjectCallDomainSelected   = "domain_selected"
	SubjectCallDisconnected     = "disconnected"

	// Candidate state subjects
	SubjectCandidates = SubjectPrefix + ".candidates"
)

// CallSubject builds a subject for a specific call event.
// Example: CallSubject("abc-123", "dialing") => "towerline.calls.abc-123.dialing"
func CallSubject(callUUID string, eventSuffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, callUUID, eventSuffix)
}

// CandidateSubject builds a subject for candidate state events.
// Example: CandidateSubject(1) => "towerline.candidates.1"
func CandidateSubject(slot int) string {
	return fmt.Sprintf("%s.%d", SubjectCandidates, slot)
}

// Subject patterns for common consumer configurations
var (
	// PatternAllCalls matches all call events
	PatternAllCalls = SubjectCalls + ".>"

	// PatternCallDisconnected matches all disconnect events
	PatternCallDisconnected = SubjectCalls + ".*." + SubjectCallDisconnected

	// PatternAllCandidates matches all candidate state events
	PatternAllCandidates = SubjectCandidates + ".>"
)
