package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oferreira/sabia/internal/llm"
)

// classifierTemperature keeps category decisions near-deterministic.
const classifierTemperature = 0.1

// Category is the classifier's output, governing whether retrieval is needed.
type Category int

const (
	// Conversational covers greetings, thanks, and general chit-chat.
	Conversational Category = iota
	// SystemKnowledge marks questions about the documented system; answering
	// requires a knowledge-base search.
	SystemKnowledge
	// GeneralKnowledge marks out-of-domain questions (sports, politics, ...);
	// no search is performed.
	GeneralKnowledge
)

func (c Category) String() string {
	switch c {
	case SystemKnowledge:
		return "SYSTEM_KNOWLEDGE"
	case GeneralKnowledge:
		return "GENERAL_KNOWLEDGE"
	default:
		return "CONVERSATIONAL"
	}
}

// RequiresRetrieval reports whether messages of this category need a
// knowledge-base search before generation.
func (c Category) RequiresRetrieval() bool {
	return c == SystemKnowledge
}

// quickPhrases are greetings, courtesies, and closings classified as
// Conversational without a model call. Exact match only (trimmed,
// case-folded): this is a latency shortcut and must not widen the
// Conversational category beyond the listed phrases.
var quickPhrases = map[string]struct{}{
	"oi":           {},
	"olá":          {},
	"ola":          {},
	"bom dia":      {},
	"boa tarde":    {},
	"boa noite":    {},
	"tudo bem":     {},
	"como vai":     {},
	"obrigado":     {},
	"obrigada":     {},
	"valeu":        {},
	"tchau":        {},
	"ajuda":        {},
	"sair":         {},
	"hi":           {},
	"hello":        {},
	"hey":          {},
	"good morning": {},
	"thanks":       {},
	"thank you":    {},
	"bye":          {},
	"goodbye":      {},
}

// Completer is the chat completion capability the classifier depends on.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Classifier maps a user utterance (plus recent history) to a Category.
type Classifier struct {
	client Completer
}

// NewClassifier creates a Classifier using the given completion client.
func NewClassifier(client Completer) *Classifier {
	return &Classifier{client: client}
}

// Classify determines the category of content. history is the conversation
// so far, in order; only the last few non-system turns are sent to the model.
// A completion failure is not recovered here — it propagates to the caller.
func (c *Classifier) Classify(ctx context.Context, content string, history []llm.Message) (Category, error) {
	if _, ok := quickPhrases[strings.ToLower(strings.TrimSpace(content))]; ok {
		slog.Debug("intent fast path hit", "category", Conversational)
		return Conversational, nil
	}

	resp, err := c.client.Complete(ctx, BuildPrompt(content, history), classifierTemperature)
	if err != nil {
		return Conversational, err
	}

	category := parseCategory(resp)
	slog.Debug("message classified", "category", category)
	return category, nil
}

// parseCategory scans the model response for the literal category keywords.
// SYSTEM_KNOWLEDGE is checked first, then GENERAL_KNOWLEDGE; anything else
// falls back to CONVERSATIONAL, biasing ambiguous answers toward the
// no-retrieval path.
func parseCategory(resp string) Category {
	upper := strings.ToUpper(resp)
	switch {
	case strings.Contains(upper, "SYSTEM_KNOWLEDGE"):
		return SystemKnowledge
	case strings.Contains(upper, "GENERAL_KNOWLEDGE"):
		return GeneralKnowledge
	default:
		return Conversational
	}
}
