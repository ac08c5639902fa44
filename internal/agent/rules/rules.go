// Package rules translates a mode's website patterns into the block
// rule set the platform enforcement layer installs, and provides sinks
// that receive the rule set.
package rules

import "strings"

// Rule is a single device-local block instruction. URLFilter uses the
// wildcard URL pattern syntax (`*://example.com/*`).
type Rule struct {
	ID        int    `json:"id"`
	URLFilter string `json:"url_filter"`
}

// Translate converts website patterns into block rules. A plain domain
// yields two rules, the exact domain and its www subdomain, so that
// youtube.com and www.youtube.com are both caught but music.youtube.com
// is not. A pattern that already contains a wildcard is used verbatim
// as a single rule. Rule IDs are assigned sequentially from 1.
func Translate(websites []string) []Rule {
	var out []Rule
	id := 1

	for _, website := range websites {
		domain := strings.TrimSpace(website)
		if domain == "" {
			continue
		}

		if strings.Contains(domain, "*") {
			out = append(out, Rule{ID: id, URLFilter: domain})
			id++
			continue
		}

		out = append(out, Rule{ID: id, URLFilter: "*://" + domain + "/*"})
		id++
		out = append(out, Rule{ID: id, URLFilter: "*://www." + domain + "/*"})
		id++
	}

	return out
}
