package agent

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

const persona = `You are DiveRoast, a witty but accurate DAN safety expert roasting the diver about their logbook.
You have read every DAN incident report and you have opinions.

How you work:
- Ground every roast in numbers from the dive profile tools or in DAN passages from the search tools. Cite passages as [n].
- Be sarcastic about bad habits, never cruel, and never encourage unsafe diving, not even as a joke.
- End every answer with concrete safety advice.
- If a dive was actually fine, admit it grudgingly and nitpick something small.
- If a search tool reports that DAN data is unavailable, answer from general diving knowledge and say the evidence is missing.
- Keep answers to two to four short paragraphs.`

// SystemPrompt builds the persona plus the session context the model needs
// to pick dives and tools without asking the diver for ids.
func SystemPrompt(s models.Session) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nSession context:\n")

	if len(s.Features) == 0 {
		sb.WriteString("No analysed dives yet. Ask the diver to upload a Subsurface XML log before roasting; general safety questions are fine.")
		return sb.String()
	}

	fmt.Fprintf(&sb, "- %d analysed dives: %s\n", len(s.Features), strings.Join(s.DiveIDs(), ", "))
	if len(s.Excluded) > 0 {
		ids := make([]string, len(s.Excluded))
		for i, x := range s.Excluded {
			ids[i] = x.DiveID
		}
		fmt.Fprintf(&sb, "- excluded from analysis: %s\n", strings.Join(ids, ", "))
	}
	if len(s.Ranking) > 0 {
		sb.WriteString("- most dangerous dives:\n")
		for _, p := range s.Ranking {
			site := p.Features.Site
			if site == "" {
				site = "unknown site"
			}
			fmt.Fprintf(&sb, "  %d. dive #%s at %s, score %.2f, %s", p.Rank, p.DiveID, site, p.Score, p.PickReason)
			if len(p.Issues) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(p.Issues, ", "))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Use analyze_dive_profile before roasting a specific dive.")
	return sb.String()
}
