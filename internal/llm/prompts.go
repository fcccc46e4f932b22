package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the model how to use tools and answer.
const SystemPrompt = `You are JAgent, a concise financial assistant.

Reason privately about what to do next. When a tool can answer part of the
question, call it instead of guessing, read its result, and repeat until you
have enough to answer. Then reply with the final answer only.

Rules:
- If the user's latest message already contains explicit allocations (percentages like '50%' or '$' amounts, or a dict-like string mapping tickers to weights), DO NOT ask any clarifying question.
- Only ask ONE brief clarifying question if allocations are missing or ambiguous.
- If the human message begins with 'NO_CLARIFY ', do not ask any clarifying question and ignore the prefix.
- Prefer calling tools over guessing data.
- Keep responses concise and include a source note when tools provide one.`

// BuildSystemPrompt appends the tool catalogue to base.
func BuildSystemPrompt(base string, tools []Tool) string {
	if len(tools) == 0 {
		return base
	}
	var desc, names []string
	for _, t := range tools {
		desc = append(desc, fmt.Sprintf("%s: %s", t.Name(), t.Description()))
		names = append(names, t.Name())
	}
	return fmt.Sprintf("%s\n\nAvailable tools:\n%s\n\nYou may call only: %s",
		base, strings.Join(desc, "\n"), strings.Join(names, ", "))
}
