package analysiswatchlist

import (
	"fmt"
	"strings"
)

const parseComponentsPrompt = `Extract 2-5 structured criteria from this user description of what to watch for.

User description:
%s

Return JSON with criteria, each having:
- label: 2-3 word kebab-case identifier (e.g., "committee-membership")
- description: 1-2 sentence explanation of what to check

Format your response as valid JSON only, no other text.
Example:
{
  "components": [
    {"label": "committee-membership", "description": "Verify that committee member names match API data"},
    {"label": "geographic-hallucination", "description": "Check if agent invents cities or districts not present in source data"}
  ]
}`

func buildScoringPrompt(message string, components []Component, toolCallFacts, stateOfRun string, triggerThreshold int) string {
	var criteria strings.Builder
	labels := make([]string, 0, len(components))
	for _, c := range components {
		fmt.Fprintf(&criteria, "- %s: %s\n", c.Label, c.Description)
		labels = append(labels, c.Label)
	}

	facts := toolCallFacts
	if strings.TrimSpace(facts) == "" {
		facts = "(No trusted facts yet)"
	}
	progress := stateOfRun
	if strings.TrimSpace(progress) == "" {
		progress = "(No context yet)"
	}

	return fmt.Sprintf(`Analyze this agent message against the watchlist criteria below.

=== AGENT MESSAGE ===
%s

=== WATCHLIST CRITERIA (score each one) ===
%s
=== CONTEXT (for reference) ===
Trusted Facts: %s
Research Progress: %s

IMPORTANT: You MUST score ALL and ONLY these components: %s

For each criterion, score 1-10 based on HOW STRONGLY the criterion is matched/triggered:
- 1-3: Criterion is NOT relevant to this message (no match)
- 4-6: Criterion is PARTIALLY relevant (weak match)
- 7-8: Criterion is CLEARLY relevant (strong match)
- 9-10: Criterion is HIGHLY relevant and the message strongly focuses on this topic

Always include reasoning for scores >= %d.
Return valid JSON with EXACTLY the component labels provided above, shaped as:
{"component_scores": [{"label": "...", "score": 5}], "component_reasoning": [{"label": "...", "reasoning": "..."}]}`,
		message, criteria.String(), facts, progress, strings.Join(labels, ", "), triggerThreshold)
}
