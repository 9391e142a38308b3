package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/ragchat/ai/mock"
	"github.com/poiesic/ragchat/answer"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQuestions(t *testing.T) {
	input := `[
		{"question": "What is Go?"},
		"just a string",
		{"q": "wrong key"},
		{"question": 42},
		{"question": "  "},
		{"question": "¿Qué es Go?", "expected": "ignored"}
	]`

	questions, invalid, err := ReadQuestions(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"What is Go?", "¿Qué es Go?"}, questions)
	require.Len(t, invalid, 4)
	assert.Equal(t, 1, invalid[0].Position)
	assert.Equal(t, "item is not an object", invalid[0].Reason)
	assert.Equal(t, `missing "question" field`, invalid[1].Reason)
	assert.Equal(t, `"question" is not a string`, invalid[2].Reason)
	assert.Equal(t, `"question" is empty`, invalid[3].Reason)
}

func TestReadQuestions_NotAnArray(t *testing.T) {
	_, _, err := ReadQuestions(strings.NewReader(`{"question": "x"}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReadQuestionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"question":"a"},{"question":"b"}]`), 0o644))

	questions, invalid, err := ReadQuestionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, questions)
	assert.Empty(t, invalid)

	_, _, err = ReadQuestionsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type staticRetriever struct{}

func (staticRetriever) RetrieveWithMonitor(context.Context, string, search.Params, search.Monitor) ([]core.ScoredChunk, error) {
	return []core.ScoredChunk{
		{Chunk: core.Chunk{Text: "Go is a programming language.", SourceID: "go.txt"}},
		{Chunk: core.Chunk{Text: "Gophers are mascots.", SourceID: "gopher.txt"}},
	}, nil
}

// newFactory returns a factory building real pipelines over a mock
// generator that fails whenever the prompt mentions "please fail".
func newFactory(generators map[string]*mock.MockGenerator) Factory {
	return func(template string) (Asker, error) {
		gen := mock.NewMockGenerator("")
		gen.GenerateFunc = func(_ context.Context, p string) (string, error) {
			if strings.Contains(p, "please fail") {
				return "", errors.New("model refused")
			}
			return "answer from " + template, nil
		}
		generators[template] = gen
		return answer.New(staticRetriever{}, gen, answer.WithTemplate(template))
	}
}

func TestRunner_Run(t *testing.T) {
	generators := map[string]*mock.MockGenerator{}
	var progress bytes.Buffer
	runner, err := NewRunner(newFactory(generators), WithProgress(&progress))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), prompt.Default, []string{"first", "please fail", "third"})
	require.NoError(t, err)
	assert.Equal(t, prompt.Default, report.Template)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 3)

	assert.Equal(t, "answer from default", report.Results[0].Answer)
	assert.Equal(t, []string{"go.txt", "gopher.txt"}, report.Results[0].Sources)
	assert.Contains(t, report.Results[1].Error, "model refused")
	assert.Empty(t, report.Results[1].Sources)

	// History threads successful turns only.
	last := generators[prompt.Default].LastPrompt()
	assert.Contains(t, last, "Question: first\nAnswer: answer from default")
	assert.NotContains(t, last, "Question: please fail")
	assert.Contains(t, progress.String(), "default: 3/3")
}

func TestRunner_RunAllUsesFreshMemory(t *testing.T) {
	generators := map[string]*mock.MockGenerator{}
	runner, err := NewRunner(newFactory(generators))
	require.NoError(t, err)

	templates := []string{prompt.Default, prompt.Concise, prompt.Conversational}
	reports, err := runner.RunAll(context.Background(), templates, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	for i, template := range templates {
		assert.Equal(t, template, reports[i].Template)
		assert.Equal(t, 2, reports[i].Succeeded)
		first := generators[template].Prompts()[0]
		assert.NotContains(t, first, "Question: one", "template %s started with history", template)
	}
}

func TestRunner_UnknownTemplate(t *testing.T) {
	runner, err := NewRunner(newFactory(map[string]*mock.MockGenerator{}))
	require.NoError(t, err)

	_, err = runner.RunAll(context.Background(), []string{prompt.Default, "v9"}, []string{"q"})
	assert.ErrorIs(t, err, prompt.ErrUnknownTemplate)
}

func TestRunner_Cancelled(t *testing.T) {
	runner, err := NewRunner(newFactory(map[string]*mock.MockGenerator{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := runner.Run(ctx, prompt.Default, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
}

func TestNewRunner_NilFactory(t *testing.T) {
	_, err := NewRunner(nil)
	assert.Equal(t, ErrFactoryRequired, err)
}

func TestWriteJSON(t *testing.T) {
	reports := []*Report{{
		Template:  "default",
		Results:   []Result{{Question: "¿Qué?", Answer: "<ok>", Sources: []string{"a.txt"}}},
		Succeeded: 1,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, reports))
	assert.Contains(t, buf.String(), "¿Qué?")
	assert.Contains(t, buf.String(), "<ok>")

	var decoded []Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a.txt", decoded[0].Results[0].Sources[0])
}
