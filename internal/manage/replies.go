package manage

import (
	"strings"

	"github.com/KafClaw/groupguard/internal/policy"
)

const (
	sectionSeparator = "\n—\n"
	noChangesText    = "No changes."
)

var deniedText = map[policy.Action]string{
	policy.ActionAddAdmin:        "⛔ Only admins can add admins.",
	policy.ActionRemoveAdmin:     "⛔ Only admins can remove admins.",
	policy.ActionAddBlacklist:    "⛔ Only admins can add users to the blacklist.",
	policy.ActionRemoveBlacklist: "⛔ Only admins can remove users from the blacklist.",
}

var usageText = map[policy.Action]string{
	policy.ActionRemoveAdmin:     "Usage: " + PrefixRemoveAdmin + " @someone",
	policy.ActionAddBlacklist:    "Usage: " + PrefixAddBlacklist + " @someone",
	policy.ActionRemoveBlacklist: "Usage: " + PrefixRemoveBlacklist + " @someone",
}

var bootstrapText = map[policy.Action]string{
	policy.ActionAddAdmin:    "✅ You are now the first admin (initialization complete). Run " + PrefixAddAdmin + " again to add others.",
	policy.ActionRemoveAdmin: "✅ You are now the first admin. Run " + PrefixRemoveAdmin + " again.",
}

type sectionTitles struct {
	changed, unchanged string
}

var titles = map[policy.Action]sectionTitles{
	policy.ActionAddAdmin:        {"✅ Added admins:", "ℹ️ Already admins (skipped):"},
	policy.ActionRemoveAdmin:     {"🗑️ Removed admins:", "❓ Not an admin:"},
	policy.ActionAddBlacklist:    {"🚷 Added to blacklist:", "ℹ️ Already blacklisted (skipped):"},
	policy.ActionRemoveBlacklist: {"✅ Removed from blacklist:", "❓ Not on the blacklist:"},
}

const keptRequesterText = "🔒 You stay admin so the group always has at least one."

// Render turns a result into reply text. name resolves display names for
// listings and may be nil.
func Render(res Result, name func(id string) string) string {
	switch res.Outcome {
	case OutcomeBootstrap:
		return bootstrapText[res.Action]
	case OutcomeDenied:
		if txt, ok := deniedText[res.Action]; ok {
			return txt
		}
		return "⛔ Permission denied."
	case OutcomeMissingTarget:
		return usageText[res.Action]
	case OutcomeListed:
		return renderListing(res, name)
	}

	t := titles[res.Action]
	var parts []string
	changed, unchanged := res.Added, res.Skipped
	if res.Action == policy.ActionRemoveAdmin || res.Action == policy.ActionRemoveBlacklist {
		changed, unchanged = res.Removed, res.NotFound
	}
	if len(changed) > 0 {
		parts = append(parts, t.changed+"\n"+strings.Join(changed, "\n"))
	}
	if len(unchanged) > 0 {
		parts = append(parts, t.unchanged+"\n"+strings.Join(unchanged, "\n"))
	}
	if res.KeptRequester {
		parts = append(parts, keptRequesterText)
	}
	if len(parts) == 0 {
		return noChangesText
	}
	return strings.Join(parts, sectionSeparator)
}

func renderListing(res Result, name func(id string) string) string {
	if len(res.Listed) == 0 {
		if res.Action == policy.ActionListAdmins {
			return "No admins yet. Run " + PrefixAddAdmin + " to initialize."
		}
		return "The blacklist is empty."
	}
	lines := make([]string, 0, len(res.Listed))
	for _, id := range res.Listed {
		disp := id
		if name != nil {
			if n := strings.TrimSpace(name(id)); n != "" && n != id {
				disp = n + " (" + id + ")"
			}
		}
		lines = append(lines, disp)
	}
	header := "🚷 Blacklist:"
	if res.Action == policy.ActionListAdmins {
		header = "👑 Admins:"
	}
	return header + "\n" + strings.Join(lines, "\n")
}
