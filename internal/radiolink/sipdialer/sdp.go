package sipdialer

import (
	"github.com/pion/sdp/v3"
)

// buildOffer creates the SDP offer carried in the INVITE.
func buildOffer(addr string, port int, formats []string) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "towerline",
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "Towerline Call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address: &sdp.Address{
				Address: addr,
			},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{
					StartTime: 0,
					StopTime:  0,
				},
			},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: formats,
				},
				Attributes: codecAttributes(formats),
			},
		},
	}
	return desc.Marshal()
}

var rtpmaps = map[string]string{
	"0":   "PCMU/8000",
	"8":   "PCMA/8000",
	"18":  "G729/8000",
	"96":  "opus/48000/2",
	"101": "telephone-event/8000",
}

func codecAttributes(formats []string) []sdp.Attribute {
	attrs := []sdp.Attribute{}
	for _, format := range formats {
		if rtpmap, ok := rtpmaps[format]; ok {
			attrs = append(attrs, sdp.Attribute{
				Key:   "rtpmap",
				Value: format + " " + rtpmap,
			})
		}
	}
	for _, format := range formats {
		if format == "101" {
			attrs = append(attrs, sdp.Attribute{
				Key:   "fmtp",
				Value: "101 0-15",
			})
		}
	}
	attrs = append(attrs, sdp.Attribute{
		Key:   "ptime",
		Value: "20",
	})
	attrs = append(attrs, sdp.Attribute{
		Key: "sendrecv",
	})
	return attrs
}
