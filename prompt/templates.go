package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/prompts"
)

// Template names.
const (
	Default        = "default"
	Concise        = "concise"
	Conversational = "conversational"
)

// Unavailable is the reply every template asks for when the context does not
// answer the question.
const Unavailable = "I don't have the information to answer that question."

// Input variable names shared by all templates.
const (
	VarChatHistory = "chat_history"
	VarContext     = "context"
	VarQuestion    = "question"
)

const defaultText = `Chat history: {{.chat_history}}
Use the following information to answer the user's question.
If the answer is not in the information provided, reply "` + Unavailable + `"
Do not make assumptions.

Context: {{.context}}
Question: {{.question}}

Answer:`

const conciseText = `Answer the question in at most three sentences using only the context below.
Cite your source: after the answer, quote the passage from the context that supports it, in double quotes.
If the context does not contain the answer, reply "` + Unavailable + `"

Previous conversation:
{{.chat_history}}
Context:
{{.context}}

Question: {{.question}}
Answer:`

const conversationalText = `You are a friendly assistant helping a user explore a set of documents.
Take the conversation so far into account and answer in a natural tone.
Base every statement on the context. When the context is not enough, say
"` + Unavailable + `" and do not guess.

Conversation so far:
{{.chat_history}}
Relevant passages:
{{.context}}

User: {{.question}}
Assistant:`

var registry = map[string]string{
	Default:        defaultText,
	Concise:        conciseText,
	Conversational: conversationalText,
}

// Values are the inputs of a template.
type Values struct {
	ChatHistory string
	Context     string
	Question    string
}

// Template is a named answer prompt.
type Template struct {
	name     string
	template prompts.PromptTemplate
}

// Lookup returns the template registered under name.
func Lookup(name string) (*Template, error) {
	text, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownTemplate, name, strings.Join(Names(), ", "))
	}
	return &Template{
		name:     name,
		template: prompts.NewPromptTemplate(text, []string{VarChatHistory, VarContext, VarQuestion}),
	}, nil
}

// Names returns the registered template names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Name returns the template's registered name.
func (t *Template) Name() string {
	return t.name
}

// Render fills the template.
func (t *Template) Render(values Values) (string, error) {
	out, err := t.template.Format(map[string]any{
		VarChatHistory: values.ChatHistory,
		VarContext:     values.Context,
		VarQuestion:    values.Question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRender, t.name, err)
	}
	return out, nil
}

// BuildContext joins the chunk texts with blank lines, in retrieval order.
func BuildContext(chunks []core.Chunk) string {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	return strings.Join(texts, "\n\n")
}
