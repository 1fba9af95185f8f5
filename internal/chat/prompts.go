package chat

import (
	"fmt"
	"strings"

	"github.com/oferreira/sabia/internal/relevance"
	"github.com/oferreira/sabia/internal/retrieval"
)

// DefaultSystemPrompt is the assistant persona used when the caller does not
// supply one. Callers may override it per request; stored history is never
// rewritten to match.
const DefaultSystemPrompt = `Você é o Sabiá, um assistente virtual especializado no sistema de gestão de documentos da empresa.
Responda sempre em português, de forma clara e objetiva.
Ajude os usuários com dúvidas sobre processos, cadastros, aprovações e funcionalidades do sistema.`

// strategyDirectives frame the generation call according to the response
// strategy chosen by intent classification and relevance evaluation.
var strategyDirectives = map[relevance.Strategy]string{
	relevance.StrategyDirect: `Responda de forma natural e simpática. Mantenha a resposta curta.`,

	relevance.StrategyGeneralKnowledge: `A pergunta do usuário não é sobre o sistema de gestão de documentos.
Explique educadamente que você só pode ajudar com assuntos relacionados ao sistema e seus processos.
Não tente responder a pergunta.`,

	relevance.StrategyContextBased: `Use as informações do contexto abaixo para responder a pergunta do usuário.
Baseie sua resposta exclusivamente no contexto fornecido.
Se o contexto não cobrir algum detalhe perguntado, diga isso explicitamente.`,

	relevance.StrategyContextBasedUncertain: `As informações encontradas têm relevância limitada para a pergunta.
Use o contexto abaixo com cautela e avise o usuário que a resposta pode estar incompleta.
Sugira que ele reformule a pergunta se precisar de mais detalhes.`,

	relevance.StrategyVeryLowRelevance: `A busca na base de conhecimento encontrou apenas informações de relevância muito baixa.
Informe ao usuário que você não encontrou informações confiáveis sobre o assunto.
Não invente uma resposta. Sugira reformular a pergunta com outros termos.`,

	relevance.StrategyIrrelevantContext: `A busca na base de conhecimento não encontrou nada relacionado à pergunta.
Informe ao usuário que esse assunto não consta na base de conhecimento do sistema.
Não invente uma resposta.`,

	relevance.StrategyClarification: `Não foi possível encontrar informações suficientes para responder.
Peça ao usuário que reformule a pergunta com mais detalhes ou termos mais específicos.`,
}

// buildSystemPrompt combines the persona with the strategy directive.
func buildSystemPrompt(persona string, strategy relevance.Strategy) string {
	if persona == "" {
		persona = DefaultSystemPrompt
	}
	directive, ok := strategyDirectives[strategy]
	if !ok {
		directive = strategyDirectives[relevance.StrategyClarification]
	}
	return persona + "\n\n" + directive
}

// formatContext renders retrieved snippets as a numbered context block for
// the generation prompt.
func formatContext(snippets []retrieval.Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Contexto encontrado na base de conhecimento:\n")
	for i, s := range snippets {
		fmt.Fprintf(&sb, "\n[%d] (fonte: %s)\n%s\n", i+1, s.Source, s.Text)
	}
	return sb.String()
}
