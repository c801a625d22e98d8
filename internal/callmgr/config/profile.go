package config

import (
	"fmt"
	"os"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"gopkg.in/yaml.v3"
)

// Profile describes the simulated device: its slots and device-wide
// defaults. Loaded from YAML at startup.
type Profile struct {
	Device DeviceProfile `yaml:"device"`
	Slots  []SlotProfile `yaml:"slots"`
}

// DeviceProfile carries device-wide subscription defaults.
type DeviceProfile struct {
	DefaultVoiceSubscription int  `yaml:"default_voice_subscription"`
	DefaultDataSubscription  int  `yaml:"default_data_subscription"`
	ConcurrentCalls          bool `yaml:"concurrent_calls"`
}

// SlotProfile describes one SIM slot.
type SlotProfile struct {
	Slot         int      `yaml:"slot"`
	Subscription int      `yaml:"subscription"`
	Service      string   `yaml:"service"`
	Sim          string   `yaml:"sim"`
	Capabilities []string `yaml:"capabilities"`
	RadioOn      bool     `yaml:"radio_on"`
}

// LoadProfile reads and validates a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if len(p.Slots) == 0 {
		return nil, fmt.Errorf("profile %s declares no slots", path)
	}
	seen := make(map[int]bool)
	for _, s := range p.Slots {
		if seen[s.Slot] {
			return nil, fmt.Errorf("profile declares slot %d twice", s.Slot)
		}
		seen[s.Slot] = true
		if _, err := parseTier(s.Service); err != nil {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, err)
		}
		if _, err := parseSim(s.Sim); err != nil {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, err)
		}
		if _, err := parseCapabilities(s.Capabilities); err != nil {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, err)
		}
	}
	return &p, nil
}

// Candidates converts the profile's slots into the candidate snapshot the
// call manager starts with.
func (p *Profile) Candidates() []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(p.Slots))
	for _, s := range p.Slots {
		tier, _ := parseTier(s.Service)
		sim, _ := parseSim(s.Sim)
		caps, _ := parseCapabilities(s.Capabilities)
		sub := s.Subscription
		if sub == 0 {
			sub = candidate.SubscriptionNone
		}
		out = append(out, candidate.Candidate{
			Slot:           s.Slot,
			SubscriptionID: sub,
			Tier:           tier,
			Sim:            sim,
			Capability:     caps,
			RadioOn:        s.RadioOn,
			DefaultVoice:   sub != candidate.SubscriptionNone && sub == p.Device.DefaultVoiceSubscription,
			DefaultData:    sub != candidate.SubscriptionNone && sub == p.Device.DefaultDataSubscription,
		})
	}
	return out
}

// DeviceState converts the profile's device section.
func (p *Profile) DeviceState() candidate.StaticDeviceState {
	return candidate.StaticDeviceState{
		VoiceSub:        p.Device.DefaultVoiceSubscription,
		DataSub:         p.Device.DefaultDataSubscription,
		ConcurrentCalls: p.Device.ConcurrentCalls,
	}
}

func parseTier(s string) (candidate.ServiceTier, error) {
	switch s {
	case "in_service":
		return candidate.TierInService, nil
	case "emergency_only":
		return candidate.TierEmergencyOnly, nil
	case "out_of_service", "":
		return candidate.TierOutOfService, nil
	default:
		return 0, fmt.Errorf("unknown service tier %q", s)
	}
}

func parseSim(s string) (candidate.SimRank, error) {
	switch s {
	case "ready":
		return candidate.SimReady, nil
	case "locked":
		return candidate.SimLocked, nil
	case "absent", "":
		return candidate.SimAbsent, nil
	default:
		return 0, fmt.Errorf("unknown sim state %q", s)
	}
}

func parseCapabilities(caps []string) (uint32, error) {
	var mask uint32
	for _, c := range caps {
		switch c {
		case "gsm":
			mask |= candidate.CapabilityGSM
		case "cdma":
			mask |= candidate.CapabilityCDMA
		case "umts":
			mask |= candidate.CapabilityUMTS
		case "lte":
			mask |= candidate.CapabilityLTE
		case "nr":
			mask |= candidate.CapabilityNR
		default:
			return 0, fmt.Errorf("unknown capability %q", c)
		}
	}
	return mask, nil
}
