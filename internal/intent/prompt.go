package intent

import (
	"fmt"
	"strings"

	"github.com/oferreira/sabia/internal/llm"
)

// maxHistoryTurns is how many recent non-system messages are included as
// classification context.
const maxHistoryTurns = 5

const classificationInstruction = `Determine whether the following message requires a search of the company's document base to be answered properly.

Context: you are an assistant answering questions about a company's internal document management system and its processes.

Classify the user's message into exactly one of these categories:

1) SYSTEM_KNOWLEDGE: a question or request about the company's systems, processes, or business rules (REQUIRES SEARCH)
2) CONVERSATIONAL: a greeting, thanks, or general conversational message (NO SEARCH)
3) GENERAL_KNOWLEDGE: a question about general knowledge unrelated to the company's systems, such as sports or entertainment (NO SEARCH)

Examples:
- "How do I access the HR system?" -> SYSTEM_KNOWLEDGE
- "Good morning, how are you?" -> CONVERSATIONAL
- "How many titles has São Paulo won?" -> GENERAL_KNOWLEDGE
- "What is the vacation approval process?" -> SYSTEM_KNOWLEDGE
- "Thanks for the help!" -> CONVERSATIONAL
- "Who is the president of Brazil?" -> GENERAL_KNOWLEDGE

Answer with only "SYSTEM_KNOWLEDGE", "CONVERSATIONAL" or "GENERAL_KNOWLEDGE".`

// BuildPrompt assembles the classification request: the fixed instruction,
// the last few non-system turns formatted as alternating speakers, and the
// current message.
func BuildPrompt(content string, history []llm.Message) []llm.Message {
	var sb strings.Builder
	sb.WriteString(classificationInstruction)

	if formatted := formatHistory(history); formatted != "" {
		sb.WriteString("\n\nRecent conversation history:\n")
		sb.WriteString(formatted)
	}

	fmt.Fprintf(&sb, "\n\nCurrent user message: %q\n", content)

	return []llm.Message{{Role: "user", Content: sb.String()}}
}

func formatHistory(history []llm.Message) string {
	var turns []string
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		speaker := "Assistant"
		if m.Role == "user" {
			speaker = "User"
		}
		turns = append(turns, speaker+": "+m.Content)
	}
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	return strings.Join(turns, "\n")
}
