package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KafClaw/groupguard/internal/timeline"
	"github.com/spf13/cobra"
)

var (
	auditGroup     string
	auditRequester string
	auditTrace     string
	auditLimit     int
	auditJSON      bool

	membersChannel string
	membersGroup   string
	membersActive  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the moderation command history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(rt *runtime) error {
			records, err := rt.timeline.ListAudit(timeline.AuditFilter{
				GroupID:   auditGroup,
				Requester: auditRequester,
				TraceID:   auditTrace,
				Limit:     auditLimit,
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if auditJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "No audit entries.")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %-16s %-10s %s", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.Outcome, r.Requester)
				if len(r.Changed) > 0 {
					line += " -> " + strings.Join(r.Changed, ",")
				}
				if r.GroupID != "" {
					line += "  [" + r.Channel + ":" + r.GroupID + "]"
				}
				fmt.Fprintln(w, line)
			}
			return nil
		})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Show the group roster recorded from join and leave events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(rt *runtime) error {
			members, err := rt.timeline.ListMembers(membersChannel, membersGroup, membersActive)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(members) == 0 {
				fmt.Fprintln(w, "No members recorded.")
				return nil
			}
			for _, m := range members {
				state := "active"
				if m.LeftAt != nil {
					state = "left " + m.LeftAt.Local().Format("2006-01-02")
				}
				name := m.DisplayName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%-10s %-24s %-24s %-20s %s\n", m.Channel, m.GroupID, m.UserID, name, state)
			}
			return nil
		})
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditGroup, "group", "", "Filter by group id")
	auditCmd.Flags().StringVar(&auditRequester, "requester", "", "Filter by requester id")
	auditCmd.Flags().StringVar(&auditTrace, "trace", "", "Filter by trace id")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to show")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print entries as JSON")

	membersCmd.Flags().StringVar(&membersChannel, "channel", "", "Channel name (webhook, slack, whatsapp)")
	membersCmd.Flags().StringVar(&membersGroup, "group", "", "Group id")
	membersCmd.Flags().BoolVar(&membersActive, "active", false, "Only members still in the group")
	_ = membersCmd.MarkFlagRequired("channel")
	_ = membersCmd.MarkFlagRequired("group")
	rootCmd.AddCommand(membersCmd)
}
