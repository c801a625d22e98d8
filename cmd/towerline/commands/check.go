package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/callmgr/config"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the candidate profile and print the resulting slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := config.LoadProfile(cfg.ProfilePath)
			if err != nil {
				return fmt.Errorf("load profile: %w", err)
			}

			device := profile.DeviceState()
			fmt.Printf("Profile: %s\n", cfg.ProfilePath)
			fmt.Printf("Device: voice_sub=%d data_sub=%d concurrent_calls=%v\n",
				device.VoiceSub, device.DataSub, device.ConcurrentCalls)

			for _, c := range profile.Candidates() {
				sub := fmt.Sprintf("%d", c.SubscriptionID)
				if !c.HasSubscription() {
					sub = "none"
				}
				fmt.Printf("Slot %d: sub=%s tier=%s sim=%s radio_on=%v voice=%v data=%v\n",
					c.Slot, sub, c.Tier, c.Sim, c.RadioOn, c.DefaultVoice, c.DefaultData)
			}
			return nil
		},
	}
}

// candidateSet builds the live candidate set from a loaded profile.
func candidateSet(p *config.Profile) *candidate.StaticSet {
	return candidate.NewStaticSet(p.Candidates())
}
