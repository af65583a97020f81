// Package fields validates and formats answers to a change reason's custom fields.
//
// Custom fields only gate on presence and shape. Unlike approval fields they never carry
// an expected value.
package fields

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"stageflow/pkg/model"
)

// Report is the outcome of Validate.
type Report struct {
	Valid  bool
	Errors []string
}

// Validate checks responses (keyed by field id) against defs.
func Validate(defs []model.CustomFieldDefinition, responses map[string]model.FieldResponse) Report {
	var errs []string
	for _, def := range defs {
		if msg := validateOne(def, responses[def.ID]); msg != "" {
			errs = append(errs, msg)
		}
	}
	return Report{Valid: len(errs) == 0, Errors: errs}
}

func validateOne(def model.CustomFieldDefinition, resp model.FieldResponse) string {
	switch def.Type {
	case model.CustomFieldBoolean:
		return ""

	case model.CustomFieldNumber:
		raw := strings.TrimSpace(resp.Value)
		if raw == "" {
			if def.IsRequired {
				return fmt.Sprintf("%s is required", def.Name)
			}
			return ""
		}
		if _, ok := ParseNumber(raw); !ok {
			return fmt.Sprintf("%s must be a number", def.Name)
		}
		return ""

	case model.CustomFieldShortText, model.CustomFieldLongText:
		if def.IsRequired && strings.TrimSpace(resp.Value) == "" {
			return fmt.Sprintf("%s is required", def.Name)
		}
		return ""

	case model.CustomFieldMultiSelect:
		if def.IsRequired && len(resp.Selected) == 0 {
			return fmt.Sprintf("%s requires at least one selection", def.Name)
		}
		if len(def.Options) > 0 {
			for _, s := range resp.Selected {
				if !contains(def.Options, s) {
					return fmt.Sprintf("%s has an unknown option %q", def.Name, s)
				}
			}
		}
		return ""

	default:
		return fmt.Sprintf("%s has unsupported type %q", def.Name, def.Type)
	}
}

// ParseNumber parses s as a finite float.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Format renders the answered fields into the commit payload shape, in definition order.
// Unanswered fields are omitted.
func Format(defs []model.CustomFieldDefinition, responses map[string]model.FieldResponse) []model.FormattedFieldResponse {
	var out []model.FormattedFieldResponse
	for _, def := range defs {
		resp, ok := responses[def.ID]
		if !ok {
			continue
		}
		value, answered := formatValue(def.Type, resp)
		if !answered {
			continue
		}
		out = append(out, model.FormattedFieldResponse{
			FieldID:   def.ID,
			FieldName: def.Name,
			FieldType: def.Type,
			Value:     value,
		})
	}
	return out
}

func formatValue(t model.CustomFieldType, resp model.FieldResponse) (string, bool) {
	switch t {
	case model.CustomFieldBoolean:
		if resp.Bool == nil {
			return "", false
		}
		return strconv.FormatBool(*resp.Bool), true
	case model.CustomFieldNumber:
		f, ok := ParseNumber(resp.Value)
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case model.CustomFieldMultiSelect:
		if len(resp.Selected) == 0 {
			return "", false
		}
		return strings.Join(resp.Selected, ", "), true
	default:
		v := strings.TrimSpace(resp.Value)
		return v, v != ""
	}
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
