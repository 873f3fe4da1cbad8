package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-judge/pkg/codegen"
)

// Problem is a judged coding question with its function signature and test cases.
type Problem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Slug        string         `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Difficulty  string         `gorm:"size:32;not null" json:"difficulty"`
	Signature   datatypes.JSON `gorm:"type:json" json:"-"`
	TestCases   datatypes.JSON `gorm:"type:json" json:"-"`
	// IsPreview marks a problem visible in the catalogue but not offered as an exam question.
	IsPreview bool      `gorm:"default:false" json:"is_preview"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetSignature serializes the signature into its JSON column.
func (p *Problem) SetSignature(sig codegen.Signature) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	p.Signature = datatypes.JSON(data)
	return nil
}

// SignatureValue decodes the stored signature.
func (p Problem) SignatureValue() (codegen.Signature, error) {
	var sig codegen.Signature
	if len(p.Signature) == 0 {
		return sig, nil
	}
	if err := json.Unmarshal(p.Signature, &sig); err != nil {
		return codegen.Signature{}, err
	}
	return sig, nil
}

// SetTestCases serializes the test cases into their JSON column.
func (p *Problem) SetTestCases(cases []codegen.TestCase) error {
	if cases == nil {
		cases = []codegen.TestCase{}
	}
	data, err := json.Marshal(cases)
	if err != nil {
		return err
	}
	p.TestCases = datatypes.JSON(data)
	return nil
}

// TestCaseList decodes the stored test cases. Numbers decode as float64.
func (p Problem) TestCaseList() ([]codegen.TestCase, error) {
	if len(p.TestCases) == 0 {
		return nil, nil
	}
	var cases []codegen.TestCase
	if err := json.Unmarshal(p.TestCases, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}
