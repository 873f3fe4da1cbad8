package codegen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-judge/pkg/judge0"
)

// ErrInputMismatch indicates test case values do not line up with the signature inputs.
var ErrInputMismatch = errors.New("test case input does not match signature")

// GenerateStdin renders one test case's values in the line format every generated driver reads:
// one line per input, scalars in plain form, arrays as bracketed comma-joined lists with string
// elements JSON-quoted.
func GenerateStdin(sig Signature, values []interface{}) (string, error) {
	if err := sig.Validate(); err != nil {
		return "", err
	}
	if len(values) != len(sig.Inputs) {
		return "", fmt.Errorf("%w: expected %d values, got %d", ErrInputMismatch, len(sig.Inputs), len(values))
	}

	var b strings.Builder
	for i, input := range sig.Inputs {
		line, err := formatInput(input.Kind(), values[i])
		if err != nil {
			return "", fmt.Errorf("%w: input %s: %v", ErrInputMismatch, input.Name, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// BuildExecutionRequests renders one base64-encoded execution request per test case, in test case order.
func BuildExecutionRequests(source string, lang Language, cases []TestCase, sig Signature) ([]judge0.Submission, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	requests := make([]judge0.Submission, 0, len(cases))
	for i, tc := range cases {
		stdin, err := GenerateStdin(sig, tc.Input)
		if err != nil {
			return nil, fmt.Errorf("test case %d: %w", i, err)
		}
		requests = append(requests, judge0.NewSubmission(source, int(lang), stdin))
	}
	return requests, nil
}

func formatInput(kind Type, value interface{}) (string, error) {
	if !kind.Known() {
		return formatLoose(value)
	}
	if kind.IsArray() {
		return formatArray(kind.Elem(), value)
	}

	text, err := formatScalar(kind, value, false)
	if err != nil {
		return "", err
	}
	if kind == TypeString && strings.ContainsAny(text, "\r\n") {
		return "", errors.New("string values must fit on one line")
	}
	return text, nil
}

func formatArray(elem Type, value interface{}) (string, error) {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return "", fmt.Errorf("expected a list, got %T", value)
	}

	items := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := formatScalar(elem, rv.Index(i).Interface(), true)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, item)
	}
	return "[" + strings.Join(items, ",") + "]", nil
}

func formatScalar(kind Type, value interface{}, quoteStrings bool) (string, error) {
	switch kind {
	case TypeNumber:
		return formatNumber(value)
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("expected a boolean, got %T", value)
		}
		return strconv.FormatBool(b), nil
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("expected a string, got %T", value)
		}
		if quoteStrings {
			return marshalJSON(s)
		}
		return s, nil
	default:
		return formatLoose(value)
	}
}

func formatNumber(value interface{}) (string, error) {
	switch n := value.(type) {
	case json.Number:
		return n.String(), nil
	case float64:
		return formatFloat(n)
	case float32:
		return formatFloat(float64(n))
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	default:
		return "", fmt.Errorf("expected a number, got %T", value)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v has no textual form", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// formatLoose renders values of unknown type: strings verbatim, everything else as JSON.
func formatLoose(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return marshalJSON(value)
}

func marshalJSON(value interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
