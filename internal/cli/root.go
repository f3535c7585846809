package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/groupguard/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"   ____                       ____                     _\n" +
		"  / ___|_ __ ___  _   _ _ __ / ___|_   _  __ _ _ __ __| |\n" +
		" | |  _| '__/ _ \\| | | | '_ \\ |  _| | | |/ _` | '__/ _` |\n" +
		" | |_| | | | (_) | |_| | |_) | |_| | |_| | (_| | | | (_| |\n" +
		"  \\____|_|  \\___/ \\__,_| .__/ \\____|\\__,_|\\__,_|_|  \\__,_|\n" +
		"                       |_|\n"
)

var rootCmd = &cobra.Command{
	Use:           "groupguard",
	Short:         "GroupGuard - group chat moderation bot",
	Long:          color.CyanString(logo) + "\nAdmin, blacklist and link moderation for group chats.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(adminsCmd)
	rootCmd.AddCommand(blacklistCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(whatsappLoginCmd)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}
