package vqa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QA is one generated question with its short answer
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UnmarshalJSON accepts any JSON value for question and answer. Strings are
// kept as is, null becomes empty and other values keep their JSON text, so a
// counting question answered with 4 reads as "4".
func (q *QA) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question json.RawMessage `json:"question"`
		Answer   json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if q.Question, err = scalarText(raw.Question); err != nil {
		return fmt.Errorf("question: %w", err)
	}
	if q.Answer, err = scalarText(raw.Answer); err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	return nil
}

func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Result is the generated question set for one image
type Result struct {
	ImageID   string `json:"image_id"`
	Questions []QA   `json:"questions"`
}

var (
	// ErrImageUnreadable is returned when the image file cannot be read; no call is made
	ErrImageUnreadable = errors.New("image unreadable")

	// ErrResponseUnparseable is returned when a reply holds no decodable result object
	ErrResponseUnparseable = errors.New("response unparseable")

	// ErrAttemptsExhausted is returned when every attempt for a record failed
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")
)

// ExtractJSON decodes the span from the first '{' to the last '}' of a model
// reply. Models often wrap the object in prose or markdown fences.
func ExtractJSON(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrResponseUnparseable)
	}

	var r Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseUnparseable, err)
	}
	return &r, nil
}
