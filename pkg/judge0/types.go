package judge0

import (
	"encoding/base64"
	"strings"
)

// StatusTerminal is the first status id that means the execution has finished.
// Ids below it are "In Queue" (1) and "Processing" (2).
const StatusTerminal = 3

// Well-known Judge0 status ids.
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeError      = 11
	StatusInternalError     = 13
)

// Submission is the wire form of an execution request. SourceCode and Stdin must already be base64.
type Submission struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

// NewSubmission base64-encodes source and stdin into a Submission.
func NewSubmission(source string, languageID int, stdin string) Submission {
	submission := Submission{
		SourceCode: Encode(source),
		LanguageID: languageID,
	}
	if stdin != "" {
		submission.Stdin = Encode(stdin)
	}
	return submission
}

// Token identifies a created submission.
type Token struct {
	Token string `json:"token"`
}

// Status is the nested status object Judge0 returns next to status_id.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is the polled state of a submission. Text fields are still base64-encoded.
type Result struct {
	Token         string  `json:"token"`
	StatusID      int     `json:"status_id"`
	LanguageID    int     `json:"language_id,omitempty"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Status        *Status `json:"status,omitempty"`
}

// State returns status_id, falling back to the nested status object.
func (r Result) State() int {
	if r.StatusID == 0 && r.Status != nil {
		return r.Status.ID
	}
	return r.StatusID
}

// Done reports whether the execution reached a terminal status.
func (r Result) Done() bool {
	return r.State() >= StatusTerminal
}

type batchRequest struct {
	Submissions []Submission `json:"submissions"`
}

type batchResponse struct {
	Submissions []Result `json:"submissions"`
}

// Encode returns the standard base64 form of text.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// Decode reverses Encode. Judge0 wraps long base64 values with newlines, so whitespace is ignored
// and missing padding is tolerated.
func Decode(encoded string) (string, error) {
	compact := strings.Join(strings.Fields(encoded), "")
	if missing := len(compact) % 4; missing != 0 {
		compact += strings.Repeat("=", 4-missing)
	}
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
