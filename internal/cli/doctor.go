package cli

import (
	"fmt"

	"github.com/KafClaw/groupguard/internal/doctor"
	"github.com/spf13/cobra"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config, store and Kafka diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := doctor.Run(cmd.Context(), doctor.Options{Offline: doctorOffline})

		failures := 0
		for _, check := range report.Checks {
			symbol := "PASS"
			if check.Status == doctor.Warn {
				symbol = "WARN"
			}
			if check.Status == doctor.Fail {
				symbol = "FAIL"
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
		}

		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip Kafka broker connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}
