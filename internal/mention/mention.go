// Package mention normalizes the users addressed by a message.
package mention

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// Mention is one addressed user. Upstream payloads name the identifier either
// user_id or userId; both decode into UserID.
type Mention struct {
	UserID string `json:"userId"`
}

func (m *Mention) UnmarshalJSON(data []byte) error {
	var raw struct {
		Snake string `json:"user_id"`
		Camel string `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.UserID = strings.TrimSpace(raw.Snake)
	if m.UserID == "" {
		m.UserID = strings.TrimSpace(raw.Camel)
	}
	return nil
}

// Extract returns the addressed user ids, deduplicated in first-occurrence
// order. Entries without an id are skipped.
func Extract(mentions []Mention) []string {
	ids := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if id := strings.TrimSpace(m.UserID); id != "" {
			ids = append(ids, id)
		}
	}
	return lo.Uniq(ids)
}

// FromIDs wraps plain ids.
func FromIDs(ids ...string) []Mention {
	return lo.Map(ids, func(id string, _ int) Mention { return Mention{UserID: id} })
}

var inlineMention = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// FromText parses Slack-style inline mentions such as <@U123> or <@U123|ann>.
func FromText(text string) []Mention {
	matches := inlineMention.FindAllStringSubmatch(text, -1)
	out := make([]Mention, 0, len(matches))
	for _, m := range matches {
		out = append(out, Mention{UserID: m[1]})
	}
	return out
}
