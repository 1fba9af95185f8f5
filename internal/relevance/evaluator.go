package relevance

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"

	"github.com/oferreira/sabia/internal/retrieval"
)

// Tier classifies retrieval confidence for the best snippet.
type Tier int

const (
	TierNone Tier = iota
	TierIrrelevant
	TierInsufficient
	TierVeryLow
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	case TierVeryLow:
		return "very_low"
	case TierInsufficient:
		return "insufficient"
	case TierIrrelevant:
		return "irrelevant"
	default:
		return "none"
	}
}

// Strategy selects the behavioral template used to frame the generation call.
type Strategy int

const (
	// StrategyDirect answers conversational messages without retrieval.
	StrategyDirect Strategy = iota
	// StrategyGeneralKnowledge declines out-of-domain questions without retrieval.
	StrategyGeneralKnowledge
	// StrategyContextBased answers from retrieved context (high/medium tiers).
	StrategyContextBased
	// StrategyContextBasedUncertain answers from low-confidence context with a caveat.
	StrategyContextBasedUncertain
	// StrategyVeryLowRelevance reports that the found context is too weak to use.
	StrategyVeryLowRelevance
	// StrategyIrrelevantContext reports that nothing relevant exists for the question.
	StrategyIrrelevantContext
	// StrategyClarification asks the user to rephrase or add detail.
	StrategyClarification
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyGeneralKnowledge:
		return "general_knowledge"
	case StrategyContextBased:
		return "context_based"
	case StrategyContextBasedUncertain:
		return "context_based_uncertain"
	case StrategyVeryLowRelevance:
		return "very_low_relevance"
	case StrategyIrrelevantContext:
		return "irrelevant_context"
	default:
		return "clarification"
	}
}

// IncludesContext reports whether retrieved text is appended to the
// generation input under this strategy.
func (s Strategy) IncludesContext() bool {
	return s == StrategyContextBased || s == StrategyContextBasedUncertain
}

// Thresholds holds the descending score cutoffs for tiering. Min is the
// floor below which context is unusable regardless of tier.
type Thresholds struct {
	High    float64
	Medium  float64
	Low     float64
	VeryLow float64
	Min     float64
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.80, Medium: 0.70, Low: 0.60, VeryLow: 0.45, Min: 0.35}
}

// Validate checks that the cutoffs are strictly descending; the tiering is
// not well-defined otherwise.
func (t Thresholds) Validate() error {
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > t.VeryLow && t.VeryLow > t.Min) {
		return fmt.Errorf("relevance thresholds must be strictly descending: high=%.2f medium=%.2f low=%.2f very_low=%.2f min=%.2f",
			t.High, t.Medium, t.Low, t.VeryLow, t.Min)
	}
	return nil
}

// defaultOffTopicKeywords are terms whose presence in a retrieved passage
// marks it as unrelated to the document-management domain, even when the
// similarity score is high. Curated from observed false positives;
// deployments may replace the list via configuration.
var defaultOffTopicKeywords = []string{
	// Sports
	"futebol", "campeonato", "copa do mundo", "libertadores", "jogador",
	"torcedor", "estádio", "gol", "football", "soccer",
	// Entertainment
	"filme", "cinema", "ator", "atriz", "música", "cantor", "cantora",
	"novela", "teatro", "movie", "concert",
	// Politics and geography
	"presidente do", "governador", "prefeito", "senador", "deputado",
	"capital do", "continente", "oceano",
	// Other general topics
	"receita de", "restaurante", "viagem", "hotel", "turismo", "recipe",
	// Shopping
	"loja online", "cartão de crédito", "boleto", "frete",
}

// Assessment is the evaluator's verdict on a retrieval result set.
type Assessment struct {
	Tier          Tier
	Usable        bool
	Strategy      Strategy
	Score         float64 // best score after any keyword penalty
	OriginalScore float64 // best score as returned by the gateway
}

// Evaluator scores and tiers retrieved context, producing a response-strategy
// directive. Similarity scores alone can rank a superficially similar but
// off-domain passage too highly, so the top snippet's text is scanned for
// off-topic keywords and its score reduced proportionally before tiering.
type Evaluator struct {
	thresholds Thresholds
	keywords   []string
	patterns   []*regexp.Regexp
}

// NewEvaluator creates an Evaluator. Passing nil keywords selects the default
// off-topic list. The thresholds are validated up front.
func NewEvaluator(thresholds Thresholds, keywords []string) (*Evaluator, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if keywords == nil {
		keywords = defaultOffTopicKeywords
	}
	patterns := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling keyword pattern %q: %w", kw, err)
		}
		patterns[i] = p
	}
	return &Evaluator{thresholds: thresholds, keywords: keywords, patterns: patterns}, nil
}

// Evaluate derives an Assessment from snippets ordered by score descending.
// Only the top snippet drives the decision.
func (e *Evaluator) Evaluate(snippets []retrieval.Snippet) Assessment {
	if len(snippets) == 0 {
		return Assessment{Tier: TierNone, Strategy: StrategyClarification}
	}

	top := snippets[0]
	score := top.Score
	original := score

	if n := e.countOffTopic(top.Text); n > 0 {
		factor := math.Min(0.7, 0.2+0.1*float64(n))
		score *= factor
		slog.Info("off-topic keywords found in top snippet, reducing relevance",
			"matches", n, "factor", factor, "original_score", original, "score", score)
	}

	a := Assessment{Score: score, OriginalScore: original}
	t := e.thresholds
	switch {
	case score < t.Min:
		a.Tier, a.Strategy = TierIrrelevant, StrategyIrrelevantContext
	case score >= t.High:
		a.Tier, a.Usable, a.Strategy = TierHigh, true, StrategyContextBased
	case score >= t.Medium:
		a.Tier, a.Usable, a.Strategy = TierMedium, true, StrategyContextBased
	case score >= t.Low:
		a.Tier, a.Usable, a.Strategy = TierLow, true, StrategyContextBasedUncertain
	case score >= t.VeryLow:
		a.Tier, a.Strategy = TierVeryLow, StrategyVeryLowRelevance
	default:
		a.Tier, a.Strategy = TierInsufficient, StrategyClarification
	}
	return a
}

// countOffTopic counts keywords present in text as whole words,
// case-insensitively. Each keyword counts once regardless of repetition.
func (e *Evaluator) countOffTopic(text string) int {
	var n int
	for _, p := range e.patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}
