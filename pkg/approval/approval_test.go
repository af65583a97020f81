package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/pkg/model"
)

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func TestBooleanMustEqualExpected(t *testing.T) {
	s := BuildSchema([]model.ApprovalFieldRule{
		{ID: "confirmed", Name: "Confirmed", Type: model.ApprovalFieldBoolean, IsRequired: true, ExpectedValueBoolean: boolPtr(true)},
	})

	res := s.Validate(map[string]model.FieldResponse{"confirmed": {Bool: boolPtr(false)}})
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"Confirmed must be yes"}, res.Errors)

	res = s.Validate(map[string]model.FieldResponse{})
	assert.False(t, res.Valid)

	res = s.Validate(map[string]model.FieldResponse{"confirmed": {Bool: boolPtr(true)}})
	assert.True(t, res.Valid)
}

func TestNumberComparisons(t *testing.T) {
	tests := []struct {
		name  string
		cmp   model.ComparisonType
		want  *float64
		value string
		ok    bool
	}{
		{"equal ok", model.ComparisonEqualTo, floatPtr(10), "10", true},
		{"equal bad", model.ComparisonEqualTo, floatPtr(10), "10.5", false},
		{"less strict", model.ComparisonLessThan, floatPtr(10), "10", false},
		{"less ok", model.ComparisonLessThan, floatPtr(10), "9.99", true},
		{"greater strict", model.ComparisonGreaterThan, floatPtr(0), "0", false},
		{"greater ok", model.ComparisonGreaterThan, floatPtr(0), "1", true},
		{"no comparison", "", nil, "-5", true},
		{"not a number", "", nil, "abc", false},
		{"NaN below bound", model.ComparisonLessThan, floatPtr(10), "NaN", false},
		{"NaN above bound", model.ComparisonGreaterThan, floatPtr(10), "NaN", false},
		{"infinity above bound", model.ComparisonGreaterThan, floatPtr(10), "Inf", false},
		{"negative infinity below bound", model.ComparisonLessThan, floatPtr(10), "-Inf", false},
		{"NaN without comparison", "", nil, "nan", false},
		{"missing required", model.ComparisonEqualTo, floatPtr(1), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuildSchema([]model.ApprovalFieldRule{{
				ID: "n", Name: "Budget", Type: model.ApprovalFieldNumber, IsRequired: true,
				ComparisonType: tt.cmp, ExpectedValueNumber: tt.want,
			}})
			res := s.Validate(map[string]model.FieldResponse{"n": {Value: tt.value}})
			assert.Equal(t, tt.ok, res.Valid, res.Errors)
		})
	}
}

func TestDateComparisons(t *testing.T) {
	tests := []struct {
		name  string
		cmp   model.DateComparisonType
		end   string
		value string
		ok    bool
	}{
		{"before ok", model.DateBefore, "", "2026-03-09", true},
		{"before same day", model.DateBefore, "", "2026-03-10", false},
		{"after ok", model.DateAfter, "", "2026-03-11", true},
		{"after same day", model.DateAfter, "", "2026-03-10", false},
		{"exact ok", model.DateExact, "", "2026-03-10", true},
		{"exact bad", model.DateExact, "", "2026-03-11", false},
		{"between lower bound", model.DateBetween, "2026-03-20", "2026-03-10", true},
		{"between upper bound", model.DateBetween, "2026-03-20", "2026-03-20", true},
		{"between outside", model.DateBetween, "2026-03-20", "2026-03-21", false},
		{"garbage", model.DateExact, "", "10/03/2026", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuildSchema([]model.ApprovalFieldRule{{
				ID: "d", Name: "Signed", Type: model.ApprovalFieldDate, IsRequired: true,
				DateComparisonType: tt.cmp, ExpectedDate: "2026-03-10", ExpectedDateEnd: tt.end,
			}})
			res := s.Validate(map[string]model.FieldResponse{"d": {Value: tt.value}})
			assert.Equal(t, tt.ok, res.Valid, res.Errors)
		})
	}
}

func TestAllViolationsReportedTogether(t *testing.T) {
	s := BuildSchema([]model.ApprovalFieldRule{
		{ID: "a", Name: "Confirmed", Type: model.ApprovalFieldBoolean, ExpectedValueBoolean: boolPtr(true)},
		{ID: "b", Name: "Notes", Type: model.ApprovalFieldLongText, IsRequired: true},
		{ID: "c", Name: "Tier", Type: model.ApprovalFieldSingleSelect, IsRequired: true, Options: []string{"gold", "silver"}},
		{ID: "d", Name: "Teams", Type: model.ApprovalFieldMultiSelect, IsRequired: true},
		{ID: "e", Name: "Optional", Type: model.ApprovalFieldShortText},
	})

	res := s.Validate(map[string]model.FieldResponse{"c": {Value: "bronze"}})
	require.False(t, res.Valid)
	assert.Equal(t, []string{
		"Confirmed must be yes",
		"Notes is required",
		"Tier must be one of: gold, silver",
		"Teams requires at least one selection",
	}, res.Errors)
}

func TestEmptySchemaIsInert(t *testing.T) {
	assert.True(t, BuildSchema(nil).Empty())
	assert.True(t, BuildSchema(nil).Validate(nil).Valid)
}

func TestSubmissionKeepsChecklistOrder(t *testing.T) {
	s := BuildSchema([]model.ApprovalFieldRule{
		{ID: "a", Name: "A", Type: model.ApprovalFieldShortText},
		{ID: "b", Name: "B", Type: model.ApprovalFieldBoolean},
	})
	sub := s.Submission("rs", "approved", "r1", map[string]model.FieldResponse{
		"b":     {Bool: boolPtr(true)},
		"a":     {Value: "x"},
		"stray": {Value: "ignored"},
	})

	assert.Equal(t, "rs", sub.RulesetID)
	require.Len(t, sub.Responses, 2)
	assert.Equal(t, "a", sub.Responses[0].FieldID)
	assert.Equal(t, "b", sub.Responses[1].FieldID)
}
