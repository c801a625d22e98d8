package sipdialer

import (
	"testing"

	"github.com/pion/sdp/v3"

	"github.com/sebas/towerline/internal/radiolink"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
		precise   int
	}{
		{486, false, radiolink.PreciseBusy},
		{600, false, radiolink.PreciseBusy},
		{404, true, radiolink.PreciseNoRouteToDestination},
		{484, true, radiolink.PreciseNoRouteToDestination},
		{403, true, radiolink.PreciseErrorUnspecified},
		{480, false, radiolink.PreciseTemporaryFailure},
		{503, false, radiolink.PreciseTemporaryFailure},
	}

	for _, tt := range tests {
		cse := classifyFailure(tt.code, "reason")
		if cse.Permanent != tt.permanent {
			t.Errorf("code %d: permanent = %v, want %v", tt.code, cse.Permanent, tt.permanent)
		}
		if cse.Precise != tt.precise {
			t.Errorf("code %d: precise = %d, want %d", tt.code, cse.Precise, tt.precise)
		}
	}
}

func TestClassifyAlternativeService(t *testing.T) {
	cse := classifyFailure(380, "Alternative Service")
	if cse.Permanent {
		t.Error("380 should be temporary")
	}
	if cse.Reason == nil || cse.Reason.Code != radiolink.ReasonSIPAlternateEmergencyCall {
		t.Errorf("380 reason = %+v, want alternate emergency", cse.Reason)
	}
}

func TestEmergencyUser(t *testing.T) {
	if got := emergencyUser(0); got != "sos" {
		t.Errorf("emergencyUser(0) = %q", got)
	}
	if got := emergencyUser(4); got != "sos.4" {
		t.Errorf("emergencyUser(4) = %q", got)
	}
}

func TestBuildOfferParses(t *testing.T) {
	body, err := buildOffer("10.0.0.1", 10000, []string{"0", "8", "101"})
	if err != nil {
		t.Fatalf("buildOffer: %v", err)
	}

	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		t.Fatalf("offer does not parse: %v", err)
	}
	if len(desc.MediaDescriptions) != 1 {
		t.Fatalf("media descriptions = %d, want 1", len(desc.MediaDescriptions))
	}

	media := desc.MediaDescriptions[0]
	if media.MediaName.Port.Value != 10000 {
		t.Errorf("port = %d, want 10000", media.MediaName.Port.Value)
	}
	if len(media.MediaName.Formats) != 3 {
		t.Errorf("formats = %v", media.MediaName.Formats)
	}
	if desc.ConnectionInformation == nil || desc.ConnectionInformation.Address.Address != "10.0.0.1" {
		t.Error("connection address missing")
	}

	foundDTMF := false
	for _, attr := range media.Attributes {
		if attr.Key == "fmtp" && attr.Value == "101 0-15" {
			foundDTMF = true
		}
	}
	if !foundDTMF {
		t.Error("missing telephone-event fmtp")
	}
}

func TestBuildINVITEHeaders(t *testing.T) {
	d := &Dialer{cfg: Config{
		Gateway:       "gw.example.com",
		AdvertiseAddr: "10.0.0.1",
		Port:          5060,
		CallerID:      "alice",
		RTPPort:       10000,
		Codecs:        []string{"0"},
	}}

	invite, err := d.buildINVITE("call-1", "tag1", "+15551234567", radiolink.DialArgs{})
	if err != nil {
		t.Fatalf("buildINVITE: %v", err)
	}

	if invite.Recipient.User != "+15551234567" {
		t.Errorf("request URI user = %q", invite.Recipient.User)
	}
	if invite.Recipient.Host != "gw.example.com" {
		t.Errorf("request URI host = %q", invite.Recipient.Host)
	}
	from := invite.From()
	if from == nil || from.Address.User != "alice" {
		t.Errorf("from = %v", from)
	}
	if tag, ok := from.Params.Get("tag"); !ok || tag != "tag1" {
		t.Errorf("from tag = %q", tag)
	}
	if cseq := invite.CSeq(); cseq == nil || cseq.SeqNo != 1 {
		t.Errorf("cseq = %v", invite.CSeq())
	}
	if len(invite.Body()) == 0 {
		t.Error("missing SDP body")
	}

	emg, err := d.buildINVITE("call-2", "tag2", "911", radiolink.DialArgs{IsEmergency: true})
	if err != nil {
		t.Fatalf("buildINVITE emergency: %v", err)
	}
	if emg.Recipient.User != "sos" {
		t.Errorf("emergency URI user = %q", emg.Recipient.User)
	}
}
