package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-judge/pkg/codegen"
)

// NewValidator returns a validator that reports fields by their JSON names.
// The judge_language rule accepts the language ids the generator supports.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = validate.RegisterValidation("judge_language", func(fl validator.FieldLevel) bool {
		return codegen.Language(fl.Field().Int()).Supported()
	})
	return validate
}
