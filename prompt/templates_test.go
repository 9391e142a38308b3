package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/ragchat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{Default, Concise, Conversational} {
		t.Run(name, func(t *testing.T) {
			tmpl, err := Lookup(name)
			require.NoError(t, err)
			assert.Equal(t, name, tmpl.Name())
		})
	}

	t.Run("unknown name", func(t *testing.T) {
		_, err := Lookup("v4")
		assert.True(t, errors.Is(err, ErrUnknownTemplate))
		assert.Contains(t, err.Error(), "v4")
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{Concise, Conversational, Default}, Names())
}

func TestRender(t *testing.T) {
	values := Values{
		ChatHistory: "Question: hi\nAnswer: hello\n\n",
		Context:     "Paris is the capital of France.",
		Question:    "What is the capital of France?",
	}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			tmpl, err := Lookup(name)
			require.NoError(t, err)

			out, err := tmpl.Render(values)
			require.NoError(t, err)
			assert.Contains(t, out, values.ChatHistory)
			assert.Contains(t, out, values.Context)
			assert.Contains(t, out, values.Question)
			assert.Contains(t, out, Unavailable)
			assert.NotContains(t, out, "{{")
		})
	}
}

func TestRender_Instructions(t *testing.T) {
	tests := []struct {
		name     string
		contains []string
		excludes []string
	}{
		{name: Default, contains: []string{"Do not make assumptions."}, excludes: []string{"Cite"}},
		{name: Concise, contains: []string{"at most three sentences", "Cite your source", "quote the passage"}},
		{name: Conversational, contains: []string{"natural tone", "When the context is not enough"}, excludes: []string{"Cite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Lookup(tt.name)
			require.NoError(t, err)
			out, err := tmpl.Render(Values{Question: "q"})
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
		})
	}
}

func TestRender_EmptyValues(t *testing.T) {
	tmpl, err := Lookup(Default)
	require.NoError(t, err)

	out, err := tmpl.Render(Values{Question: "anything?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Chat history: \n"))
	assert.Contains(t, out, "Context: \nQuestion: anything?")
}

func TestRender_TemplateSyntaxInValues(t *testing.T) {
	tmpl, err := Lookup(Default)
	require.NoError(t, err)

	out, err := tmpl.Render(Values{Context: "{{.question}}", Question: "q"})
	require.NoError(t, err)
	assert.Contains(t, out, "Context: {{.question}}")
}

func TestBuildContext(t *testing.T) {
	chunks := []core.Chunk{{Text: "first"}, {Text: "second"}, {Text: "third"}}
	assert.Equal(t, "first\n\nsecond\n\nthird", BuildContext(chunks))
	assert.Equal(t, "", BuildContext(nil))
}
