package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/pkg/model"
)

func boolPtr(b bool) *bool { return &b }

func TestValidate(t *testing.T) {
	defs := []model.CustomFieldDefinition{
		{ID: "b", Name: "Urgent", Type: model.CustomFieldBoolean, IsRequired: true},
		{ID: "n", Name: "Hours", Type: model.CustomFieldNumber, IsRequired: true},
		{ID: "s", Name: "Ticket", Type: model.CustomFieldShortText, IsRequired: true},
		{ID: "l", Name: "Summary", Type: model.CustomFieldLongText},
		{ID: "m", Name: "Teams", Type: model.CustomFieldMultiSelect, IsRequired: true, Options: []string{"ops", "dev"}},
	}

	tests := []struct {
		name      string
		responses map[string]model.FieldResponse
		wantErrs  []string
	}{
		{
			name: "all good",
			responses: map[string]model.FieldResponse{
				"n": {Value: "3.5"},
				"s": {Value: "T-1"},
				"m": {Selected: []string{"ops"}},
			},
		},
		{
			name:      "everything missing",
			responses: map[string]model.FieldResponse{"s": {Value: "   "}},
			wantErrs: []string{
				"Hours is required",
				"Ticket is required",
				"Teams requires at least one selection",
			},
		},
		{
			name: "bad number and option",
			responses: map[string]model.FieldResponse{
				"n": {Value: "Inf"},
				"s": {Value: "x"},
				"m": {Selected: []string{"qa"}},
			},
			wantErrs: []string{
				"Hours must be a number",
				`Teams has an unknown option "qa"`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate(defs, tt.responses)
			assert.Equal(t, len(tt.wantErrs) == 0, report.Valid)
			assert.Equal(t, tt.wantErrs, report.Errors)
		})
	}
}

func TestFormatSkipsUnanswered(t *testing.T) {
	defs := []model.CustomFieldDefinition{
		{ID: "b", Name: "Urgent", Type: model.CustomFieldBoolean},
		{ID: "n", Name: "Hours", Type: model.CustomFieldNumber},
		{ID: "s", Name: "Ticket", Type: model.CustomFieldShortText},
		{ID: "m", Name: "Teams", Type: model.CustomFieldMultiSelect},
	}
	out := Format(defs, map[string]model.FieldResponse{
		"b": {Bool: boolPtr(false)},
		"n": {Value: " 4.0 "},
		"s": {Value: ""},
		"m": {Selected: []string{"ops", "dev"}},
	})

	require.Len(t, out, 3)
	assert.Equal(t, model.FormattedFieldResponse{FieldID: "b", FieldName: "Urgent", FieldType: model.CustomFieldBoolean, Value: "false"}, out[0])
	assert.Equal(t, "4", out[1].Value)
	assert.Equal(t, "ops, dev", out[2].Value)
}
