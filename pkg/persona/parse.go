package persona

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/outputparser"
)

// ErrNoJSON is returned by ParseResult when text holds no JSON object with
// an "excuse" or "response" field.
var ErrNoJSON = errors.New("persona: no answer object in text")

var resultParser = mustDefined()

func mustDefined() outputparser.Defined[Result] {
	p, err := outputparser.NewDefined(Result{})
	if err != nil {
		panic(err)
	}
	return p
}

// FormatInstructions describes the answer object to a model. Parsing is
// done by ParseResult, which also accepts objects outside a fence.
func FormatInstructions() string {
	return resultParser.GetFormatInstructions()
}

const fence = "```"

// ParseResult extracts the answer object from the agent's final message.
// The object may be the whole text, sit inside a Markdown fence, or be
// embedded in prose.
func ParseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)

	if r, ok := decode(text); ok {
		return r, nil
	}

	if body, ok := fenced(text); ok {
		if r, ok := decode(body); ok {
			return r, nil
		}
	}

	for start := strings.Index(text, "{"); start >= 0; {
		if r, ok := decodePrefix(text[start:]); ok {
			return r, nil
		}
		next := strings.Index(text[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}

	return Result{}, ErrNoJSON
}

// fenced returns the body of the first Markdown code fence in text.
func fenced(text string) (string, bool) {
	open := strings.Index(text, fence)
	if open < 0 {
		return "", false
	}
	rest := text[open+len(fence):]

	// Drop the info string ("json", "JSON", ...).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

type answer struct {
	Excuse   *string `json:"excuse"`
	Response *string `json:"response"`
}

func (a answer) result() (Result, bool) {
	if a.Excuse == nil && a.Response == nil {
		return Result{}, false
	}

	var r Result
	if a.Excuse != nil {
		r.Excuse = *a.Excuse
	}
	if a.Response != nil {
		r.Response = *a.Response
	}
	return r, true
}

func decode(s string) (Result, bool) {
	var a answer
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Result{}, false
	}
	return a.result()
}

// decodePrefix decodes the first JSON value of s, ignoring trailing prose.
func decodePrefix(s string) (Result, bool) {
	var a answer
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&a); err != nil {
		return Result{}, false
	}
	return a.result()
}
