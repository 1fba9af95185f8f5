package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oferreira/sabia/internal/intent"
	"github.com/oferreira/sabia/internal/llm"
	"github.com/oferreira/sabia/internal/relevance"
	"github.com/oferreira/sabia/internal/retrieval"
	"github.com/oferreira/sabia/internal/store"
)

// generationTemperature is used for the final response. Classification runs
// near-deterministic; generation keeps some variety.
const generationTemperature = 0.7

// Classifier decides whether a message needs knowledge-base retrieval.
type Classifier interface {
	Classify(ctx context.Context, content string, history []llm.Message) (intent.Category, error)
}

// Searcher retrieves snippets from the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string) ([]retrieval.Snippet, error)
}

// Completer generates the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Orchestrator runs the full turn pipeline: persist the user message,
// classify intent, retrieve and evaluate context when needed, pick a
// response strategy, generate the reply, and persist it with provenance
// metadata.
type Orchestrator struct {
	store      *store.Store
	classifier Classifier
	searcher   Searcher
	evaluator  *relevance.Evaluator
	completer  Completer
	persona    string
}

// NewOrchestrator wires the pipeline. persona is the default system prompt;
// pass "" to use DefaultSystemPrompt.
func NewOrchestrator(st *store.Store, classifier Classifier, searcher Searcher, evaluator *relevance.Evaluator, completer Completer, persona string) *Orchestrator {
	if persona == "" {
		persona = DefaultSystemPrompt
	}
	return &Orchestrator{
		store:      st,
		classifier: classifier,
		searcher:   searcher,
		evaluator:  evaluator,
		completer:  completer,
		persona:    persona,
	}
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID string
	OwnerID        string
	Content        string
	// SystemPrompt overrides the default persona for this turn only.
	// Stored history is never rewritten.
	SystemPrompt string
}

// Reply is the outcome of a processed turn.
type Reply struct {
	UserMessage      store.Message
	AssistantMessage store.Message
	Intent           intent.Category
	Strategy         relevance.Strategy
}

// SendMessage processes one user turn end to end. The user message is
// persisted before the pipeline runs; a downstream failure leaves it in the
// conversation so the turn can be retried without losing input.
func (o *Orchestrator) SendMessage(ctx context.Context, req SendRequest) (Reply, error) {
	conv, err := o.store.GetConversation(req.ConversationID, req.OwnerID)
	if err != nil {
		return Reply{}, err
	}
	history := toLLMMessages(conv.Messages)

	userMsg, err := o.store.AppendMessage(req.ConversationID, req.OwnerID, store.RoleUser, req.Content, nil)
	if err != nil {
		return Reply{}, err
	}

	category, err := o.classifier.Classify(ctx, req.Content, history)
	if err != nil {
		return Reply{}, fmt.Errorf("classifying message: %w", err)
	}

	var snippets []retrieval.Snippet
	var assessment relevance.Assessment
	strategy := relevance.StrategyDirect

	switch category {
	case intent.SystemKnowledge:
		snippets, err = o.searcher.Search(ctx, req.Content)
		if err != nil {
			return Reply{}, fmt.Errorf("searching knowledge base: %w", err)
		}
		assessment = o.evaluator.Evaluate(snippets)
		strategy = assessment.Strategy
	case intent.GeneralKnowledge:
		strategy = relevance.StrategyGeneralKnowledge
	}

	slog.Info("turn routed",
		"conversation_id", req.ConversationID,
		"intent", category.String(),
		"strategy", strategy.String(),
		"relevance", assessment.Tier.String())

	reply, err := o.generate(ctx, req, history, strategy, snippets)
	if err != nil {
		return Reply{}, fmt.Errorf("generating reply: %w", err)
	}

	metadata := map[string]any{
		"response_strategy":      strategy.String(),
		"required_vector_search": category.RequiresRetrieval(),
	}
	if len(snippets) > 0 {
		// similarity_score is the raw top-snippet score; any keyword penalty
		// shows up in relevance_level, not here.
		top := snippets[0]
		metadata["context_source"] = top.Source
		metadata["doc_id"] = top.DocID
		metadata["chunk_index"] = top.ChunkIndex
		metadata["similarity_score"] = top.Score
		metadata["relevance_level"] = assessment.Tier.String()
	}

	assistantMsg, err := o.store.AppendMessage(req.ConversationID, req.OwnerID, store.RoleAssistant, reply, metadata)
	if err != nil {
		return Reply{}, err
	}

	return Reply{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Intent:           category,
		Strategy:         strategy,
	}, nil
}

// generate assembles the prompt and calls the completion model. The persona
// and strategy directive are applied fresh on every turn; system messages in
// stored history are ignored.
func (o *Orchestrator) generate(ctx context.Context, req SendRequest, history []llm.Message, strategy relevance.Strategy, snippets []retrieval.Snippet) (string, error) {
	persona := req.SystemPrompt
	if persona == "" {
		persona = o.persona
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: buildSystemPrompt(persona, strategy)})
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		msgs = append(msgs, m)
	}

	userContent := req.Content
	if strategy.IncludesContext() {
		userContent = formatContext(snippets) + "\nPergunta do usuário: " + req.Content
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userContent})

	return o.completer.Complete(ctx, msgs, generationTemperature)
}

// CreateConversation starts a new conversation for an owner.
func (o *Orchestrator) CreateConversation(ownerID string, metadata map[string]string) (store.Conversation, error) {
	return o.store.CreateConversation(ownerID, o.persona, metadata)
}

// GetConversation returns a conversation with its full message history.
func (o *Orchestrator) GetConversation(conversationID, ownerID string) (store.Conversation, error) {
	return o.store.GetConversation(conversationID, ownerID)
}

// ListConversations returns conversation summaries for an owner, most
// recently updated first.
func (o *Orchestrator) ListConversations(ownerID string, limit, offset int) ([]store.Summary, error) {
	return o.store.ListConversations(ownerID, limit, offset)
}

// DeleteConversation removes a conversation. Reports whether it existed.
func (o *Orchestrator) DeleteConversation(conversationID, ownerID string) (bool, error) {
	return o.store.DeleteConversation(conversationID, ownerID)
}

func toLLMMessages(messages []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
