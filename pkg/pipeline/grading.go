package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/judge0"
)

// Outcome is the graded result of one test case.
type Outcome struct {
	Passed          bool        `json:"passed"`
	Expected        interface{} `json:"expected"`
	Actual          *string     `json:"actual"`
	HasCompileError bool        `json:"hasCompileError"`
	CompileError    string      `json:"compileError"`
	IsHidden        bool        `json:"isHidden"`
	StatusID        int         `json:"statusId"`
}

// BatchResult is the atomically graded result of a full batch, in test case order.
type BatchResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Passed   int       `json:"passed"`
	Total    int       `json:"total"`
}

// Perfect reports whether every outcome passed without a compile error.
func (b BatchResult) Perfect() bool {
	if len(b.Outcomes) == 0 {
		return false
	}
	for _, outcome := range b.Outcomes {
		if !outcome.Passed || outcome.HasCompileError {
			return false
		}
	}
	return true
}

// Normalize converts CRLF to LF and then removes every whitespace character.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Join(strings.Fields(text), "")
}

// ExpectedJSON serializes an expected value the way the comparison expects it: compact JSON
// without HTML escaping.
func ExpectedJSON(value interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Grade compares results with test cases index by index. Results must be in test case order.
func Grade(results []judge0.Result, cases []codegen.TestCase) BatchResult {
	batch := BatchResult{
		Outcomes: make([]Outcome, len(cases)),
		Total:    len(cases),
	}

	for i, tc := range cases {
		var outcome Outcome
		if i < len(results) {
			outcome = gradeOne(results[i], tc)
		} else {
			outcome = Outcome{Expected: tc.ExpectedOutput, IsHidden: tc.IsHidden}
		}
		batch.Outcomes[i] = outcome
		if outcome.Passed {
			batch.Passed++
		}
		gradedOutcomes.WithLabelValues(verdict(outcome)).Inc()
	}
	return batch
}

func gradeOne(result judge0.Result, tc codegen.TestCase) Outcome {
	outcome := Outcome{IsHidden: tc.IsHidden, StatusID: result.State()}

	switch {
	case present(result.CompileOutput):
		outcome.HasCompileError = true
		outcome.CompileError = decodeText(*result.CompileOutput)
	case present(result.Stdout):
		decoded := decodeText(*result.Stdout)
		actual := strings.TrimSpace(decoded)
		outcome.Expected = tc.ExpectedOutput
		outcome.Actual = &actual
		if expected, err := ExpectedJSON(tc.ExpectedOutput); err == nil {
			outcome.Passed = Normalize(decoded) == Normalize(expected)
		}
	case present(result.Stderr):
		actual := decodeText(*result.Stderr)
		outcome.Expected = tc.ExpectedOutput
		outcome.Actual = &actual
	default:
		outcome.Expected = tc.ExpectedOutput
	}
	return outcome
}

// RunOutput picks the single stream an ad-hoc run surfaces: compile output, else stdout, else stderr.
func RunOutput(result judge0.Result) (OutputKind, string) {
	switch {
	case present(result.CompileOutput):
		return OutputCompileError, decodeText(*result.CompileOutput)
	case present(result.Stdout):
		return OutputStdout, decodeText(*result.Stdout)
	case present(result.Stderr):
		return OutputStderr, decodeText(*result.Stderr)
	default:
		return OutputEmpty, ""
	}
}

func verdict(outcome Outcome) string {
	switch {
	case outcome.HasCompileError:
		return "compile_error"
	case outcome.Passed:
		return "passed"
	case outcome.Actual == nil:
		return "no_output"
	default:
		return "failed"
	}
}

func present(text *string) bool {
	return text != nil && strings.TrimSpace(*text) != ""
}

// decodeText decodes a base64 field and falls back to the raw text if it is not base64.
func decodeText(encoded string) string {
	decoded, err := judge0.Decode(encoded)
	if err != nil {
		return encoded
	}
	return decoded
}
