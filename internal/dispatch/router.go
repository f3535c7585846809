// Package dispatch routes inbound channel events to moderation commands and
// group notices.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/KafClaw/groupguard/internal/manage"
	"github.com/KafClaw/groupguard/internal/policy"
)

const (
	linkWarningText = "🚫 Links are not allowed here. Please follow the group rules."
	memberLeftText  = "⚠️ A member left the group. If this was not done by an admin, please check the group's security."
	helpText        = "Commands:\n" +
		manage.PrefixAddAdmin + " " + manage.PrefixRemoveAdmin + " " + manage.PrefixListAdmins + "\n" +
		manage.PrefixAddBlacklist + " " + manage.PrefixRemoveBlacklist + " " + manage.PrefixListBlacklist
)

type route struct {
	prefix string
	action policy.Action
}

// Checked in order; the first matching prefix wins.
var routes = []route{
	{manage.PrefixAddAdmin, policy.ActionAddAdmin},
	{manage.PrefixRemoveAdmin, policy.ActionRemoveAdmin},
	{manage.PrefixListAdmins, policy.ActionListAdmins},
	{manage.PrefixAddBlacklist, policy.ActionAddBlacklist},
	{manage.PrefixRemoveBlacklist, policy.ActionRemoveBlacklist},
	{manage.PrefixListBlacklist, policy.ActionListBlacklist},
}

// Route maps trimmed message text to a command by prefix.
func Route(text string) (policy.Action, bool) {
	text = strings.TrimSpace(text)
	for _, r := range routes {
		if strings.HasPrefix(text, r.prefix) {
			return r.action, true
		}
	}
	return "", false
}

// ContainsLink reports whether text carries an http or https URL.
func ContainsLink(text string) bool {
	return strings.Contains(text, "http://") || strings.Contains(text, "https://")
}

func welcomeText(n int) string {
	if n == 1 {
		return "🐶 Welcome! 1 new member joined the group."
	}
	return fmt.Sprintf("🐶 Welcome! %d new members joined the group.", n)
}

func blacklistedJoinedText(ids []string) string {
	return "⚠️ Blacklisted users joined:\n" + strings.Join(ids, "\n")
}
