package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Invalid is a question file item that was skipped.
type Invalid struct {
	Position int             `json:"position"`
	Item     json.RawMessage `json:"item"`
	Reason   string          `json:"reason"`
}

// ReadQuestions parses a JSON array of question objects. Valid questions
// are returned in file order; every other item is reported in invalid.
func ReadQuestions(r io.Reader) (questions []string, invalid []Invalid, err error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	for i, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			invalid = append(invalid, Invalid{Position: i, Item: item, Reason: "item is not an object"})
			continue
		}
		raw, ok := obj["question"]
		if !ok {
			invalid = append(invalid, Invalid{Position: i, Item: item, Reason: `missing "question" field`})
			continue
		}
		var question string
		if err := json.Unmarshal(raw, &question); err != nil {
			invalid = append(invalid, Invalid{Position: i, Item: item, Reason: `"question" is not a string`})
			continue
		}
		if strings.TrimSpace(question) == "" {
			invalid = append(invalid, Invalid{Position: i, Item: item, Reason: `"question" is empty`})
			continue
		}
		questions = append(questions, question)
	}
	return questions, invalid, nil
}

// ReadQuestionsFile is ReadQuestions on the named file.
func ReadQuestionsFile(path string) ([]string, []Invalid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadQuestions(f)
}
