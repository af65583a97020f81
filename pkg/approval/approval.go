// Package approval evaluates a stage's approval checklist.
//
// Each ApprovalFieldRule is compiled into one rule variant carrying its own expectation.
// All variants are evaluated by evaluate, and every violation is reported at once.
package approval

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stageflow/pkg/fields"
	"stageflow/pkg/model"
)

// rule is the sealed union of checklist item kinds.
type rule interface {
	field() model.ApprovalFieldRule
}

type base struct{ def model.ApprovalFieldRule }

func (b base) field() model.ApprovalFieldRule { return b.def }

type booleanRule struct {
	base
	expected *bool
}

type numberRule struct {
	base
	comparison model.ComparisonType
	expected   *float64
}

type textRule struct{ base }

type singleSelectRule struct {
	base
	options []string
}

type multiSelectRule struct {
	base
	options []string
}

type dateRule struct {
	base
	comparison model.DateComparisonType
	from, to   time.Time
	hasFrom    bool
	hasTo      bool
}

type unsupportedRule struct{ base }

// Result is the outcome of Schema.Validate.
type Result struct {
	Valid  bool
	Errors []string
}

// Schema validates responses against a compiled checklist.
type Schema struct {
	rules []rule
}

// BuildSchema compiles rules, in the order given.
func BuildSchema(rules []model.ApprovalFieldRule) *Schema {
	s := &Schema{rules: make([]rule, 0, len(rules))}
	for _, f := range rules {
		s.rules = append(s.rules, compile(f))
	}
	return s
}

func compile(f model.ApprovalFieldRule) rule {
	b := base{def: f}
	switch f.Type {
	case model.ApprovalFieldBoolean:
		return booleanRule{base: b, expected: f.ExpectedValueBoolean}
	case model.ApprovalFieldNumber:
		return numberRule{base: b, comparison: f.ComparisonType, expected: f.ExpectedValueNumber}
	case model.ApprovalFieldShortText, model.ApprovalFieldLongText:
		return textRule{base: b}
	case model.ApprovalFieldSingleSelect:
		return singleSelectRule{base: b, options: f.Options}
	case model.ApprovalFieldMultiSelect:
		return multiSelectRule{base: b, options: f.Options}
	case model.ApprovalFieldDate:
		r := dateRule{base: b, comparison: f.DateComparisonType}
		if d, err := time.Parse(model.DateLayout, f.ExpectedDate); err == nil {
			r.from, r.hasFrom = d, true
		}
		if d, err := time.Parse(model.DateLayout, f.ExpectedDateEnd); err == nil {
			r.to, r.hasTo = d, true
		}
		return r
	default:
		return unsupportedRule{base: b}
	}
}

// Empty reports whether the schema has no rules, in which case the gate is inert.
func (s *Schema) Empty() bool {
	return s == nil || len(s.rules) == 0
}

// Fields returns the checklist definitions in evaluation order.
func (s *Schema) Fields() []model.ApprovalFieldRule {
	out := make([]model.ApprovalFieldRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.field())
	}
	return out
}

// Validate evaluates every rule and collects all violations.
func (s *Schema) Validate(responses map[string]model.FieldResponse) Result {
	var errs []string
	for _, r := range s.rules {
		if msg := evaluate(r, responses[r.field().ID]); msg != "" {
			errs = append(errs, msg)
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Submission packages the responses in checklist order for the backend.
func (s *Schema) Submission(rulesetID, stageID, reasonID string, responses map[string]model.FieldResponse) model.ApprovalSubmission {
	sub := model.ApprovalSubmission{RulesetID: rulesetID, StageID: stageID, ReasonID: reasonID}
	for _, r := range s.rules {
		id := r.field().ID
		resp, ok := responses[id]
		if !ok {
			continue
		}
		resp.FieldID = id
		sub.Responses = append(sub.Responses, resp)
	}
	return sub
}

func evaluate(r rule, resp model.FieldResponse) string {
	def := r.field()
	value := strings.TrimSpace(resp.Value)

	switch r := r.(type) {
	case booleanRule:
		if r.expected != nil {
			if resp.Bool == nil || *resp.Bool != *r.expected {
				return fmt.Sprintf("%s must be %s", def.Name, yesNo(*r.expected))
			}
			return ""
		}
		if def.IsRequired && resp.Bool == nil {
			return fmt.Sprintf("%s is required", def.Name)
		}

	case numberRule:
		if value == "" {
			return required(def)
		}
		n, ok := fields.ParseNumber(value)
		if !ok {
			return fmt.Sprintf("%s must be a number", def.Name)
		}
		if r.expected == nil || r.comparison == "" {
			return ""
		}
		want := *r.expected
		switch r.comparison {
		case model.ComparisonEqualTo:
			if n != want {
				return fmt.Sprintf("%s must equal %s", def.Name, formatNumber(want))
			}
		case model.ComparisonLessThan:
			if n >= want {
				return fmt.Sprintf("%s must be less than %s", def.Name, formatNumber(want))
			}
		case model.ComparisonGreaterThan:
			if n <= want {
				return fmt.Sprintf("%s must be greater than %s", def.Name, formatNumber(want))
			}
		}

	case textRule:
		if value == "" {
			return required(def)
		}

	case singleSelectRule:
		if value == "" {
			return required(def)
		}
		if len(r.options) > 0 && !contains(r.options, value) {
			return fmt.Sprintf("%s must be one of: %s", def.Name, strings.Join(r.options, ", "))
		}

	case multiSelectRule:
		if len(resp.Selected) == 0 {
			if def.IsRequired {
				return fmt.Sprintf("%s requires at least one selection", def.Name)
			}
			return ""
		}
		if len(r.options) > 0 {
			for _, s := range resp.Selected {
				if !contains(r.options, s) {
					return fmt.Sprintf("%s has an unknown option %q", def.Name, s)
				}
			}
		}

	case dateRule:
		if value == "" {
			return required(def)
		}
		d, err := time.Parse(model.DateLayout, value)
		if err != nil {
			return fmt.Sprintf("%s must be a date (YYYY-MM-DD)", def.Name)
		}
		return checkDate(def.Name, r, d)

	case unsupportedRule:
		return fmt.Sprintf("%s has unsupported type %q", def.Name, def.Type)
	}
	return ""
}

func checkDate(name string, r dateRule, d time.Time) string {
	if !r.hasFrom {
		return ""
	}
	from := r.from.Format(model.DateLayout)
	switch r.comparison {
	case model.DateBefore:
		if !d.Before(r.from) {
			return fmt.Sprintf("%s must be before %s", name, from)
		}
	case model.DateAfter:
		if !d.After(r.from) {
			return fmt.Sprintf("%s must be after %s", name, from)
		}
	case model.DateExact:
		if !d.Equal(r.from) {
			return fmt.Sprintf("%s must be %s", name, from)
		}
	case model.DateBetween:
		if !r.hasTo {
			return ""
		}
		if d.Before(r.from) || d.After(r.to) {
			return fmt.Sprintf("%s must be between %s and %s", name, from, r.to.Format(model.DateLayout))
		}
	}
	return ""
}

func required(def model.ApprovalFieldRule) string {
	if def.IsRequired {
		return fmt.Sprintf("%s is required", def.Name)
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
