package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSignature indicates a signature lacks its function name, inputs or output.
var ErrInvalidSignature = errors.New("invalid problem signature")

// ErrUnsupportedLanguage indicates no backend is registered for the language id.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Type is an abstract parameter type from the closed problem type set.
type Type string

// Canonical abstract types.
const (
	TypeNumber       Type = "number"
	TypeString       Type = "string"
	TypeBoolean      Type = "boolean"
	TypeNumberArray  Type = "number[]"
	TypeStringArray  Type = "string[]"
	TypeBooleanArray Type = "boolean[]"
)

// AllTypes lists every supported abstract type.
var AllTypes = []Type{TypeNumber, TypeString, TypeBoolean, TypeNumberArray, TypeStringArray, TypeBooleanArray}

// NormalizeType lowercases the raw type, drops whitespace and folds array<x> into x[].
// Unknown names are returned normalized but otherwise untouched.
func NormalizeType(raw string) Type {
	normalized := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if strings.HasPrefix(normalized, "array<") && strings.HasSuffix(normalized, ">") {
		normalized = strings.TrimSuffix(strings.TrimPrefix(normalized, "array<"), ">") + "[]"
	}
	return Type(normalized)
}

// Known reports whether t belongs to the closed type set.
func (t Type) Known() bool {
	for _, candidate := range AllTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

// IsArray reports whether t is one of the array forms.
func (t Type) IsArray() bool {
	return strings.HasSuffix(string(t), "[]")
}

// Elem returns the element type of an array type, or t itself for scalars.
func (t Type) Elem() Type {
	return Type(strings.TrimSuffix(string(t), "[]"))
}

// Param is a named, typed function input or output.
type Param struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// Kind returns the normalized abstract type of the parameter.
func (p Param) Kind() Type {
	return NormalizeType(p.Type)
}

// Signature describes the function a problem asks the user to implement.
// A nil Inputs slice means the inputs are missing; an empty one means the function takes no arguments.
type Signature struct {
	FunctionName string  `json:"functionName"`
	Inputs       []Param `json:"inputs"`
	Output       *Param  `json:"output"`
}

// Validate reports ErrInvalidSignature when a required part of the signature is absent.
func (s Signature) Validate() error {
	var missing []string
	if strings.TrimSpace(s.FunctionName) == "" {
		missing = append(missing, "functionName")
	}
	if s.Inputs == nil {
		missing = append(missing, "inputs")
	}
	if s.Output == nil {
		missing = append(missing, "output")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSignature, strings.Join(missing, ", "))
	}
	return nil
}

func (s Signature) argNames() string {
	names := make([]string, 0, len(s.Inputs))
	for _, input := range s.Inputs {
		names = append(names, input.Name)
	}
	return strings.Join(names, ", ")
}

// TestCase is one graded example: positional input values and the expected result.
type TestCase struct {
	Input          []interface{} `json:"input"`
	ExpectedOutput interface{}   `json:"expectedOutput"`
	IsHidden       bool          `json:"isHidden"`
}
