package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/pkg/model"
)

func boolPtr(b bool) *bool { return &b }

func testBundle() model.Bundle {
	return model.Bundle{
		Stages: []model.StageDefinition{
			{ID: "approved", Name: "Approved", Order: 3, ValidReasonIDs: []string{"signed_off", "override"}, StageApprovalID: "rs-stage"},
			{ID: "intake", Name: "Intake", Order: 1},
			{ID: "review", Name: "Review", Order: 2, ValidReasonIDs: []string{"client_requested", "ghost"}},
			{ID: "archived", Name: "Archived", Order: 4, ValidReasonIDs: []string{"done"}, StageApprovalID: "rs-missing"},
		},
		Reasons: []model.ChangeReason{
			{ID: "client_requested", Code: "CLIENT"},
			{ID: "signed_off", Code: "SIGNED", CustomFields: []model.CustomFieldDefinition{{ID: "cf1", Name: "Ref", Type: model.CustomFieldShortText}}},
			{ID: "override", Code: "OVR", StageApprovalID: "rs-reason"},
			{ID: "done", Code: "DONE"},
		},
		ApprovalRulesets: []model.ApprovalRuleset{{ID: "rs-stage"}, {ID: "rs-reason"}, {ID: "rs-empty"}},
		ApprovalFieldRules: []model.ApprovalFieldRule{
			{ID: "f2", RulesetID: "rs-stage", Name: "Second", Type: model.ApprovalFieldLongText, Order: 2},
			{ID: "f1", RulesetID: "rs-stage", Name: "Confirmed", Type: model.ApprovalFieldBoolean, Order: 1, ExpectedValueBoolean: boolPtr(true)},
			{ID: "g1", RulesetID: "rs-reason", Name: "Budget", Type: model.ApprovalFieldNumber, Order: 1},
			{ID: "x1", RulesetID: "rs-missing", Name: "Orphan", Type: model.ApprovalFieldBoolean},
		},
	}
}

func TestAvailableTargetStagesExcludesCurrent(t *testing.T) {
	bundle := testBundle()
	for _, current := range bundle.Stages {
		r := New(bundle, current.ID)
		stages := r.AvailableTargetStages()
		require.Len(t, stages, len(bundle.Stages)-1)
		for _, s := range stages {
			assert.NotEqual(t, current.ID, s.ID)
		}
	}

	ids := []string{}
	for _, s := range New(bundle, "review").AvailableTargetStages() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"intake", "approved", "archived"}, ids)
}

func TestReasonsForSkipsDanglingIDs(t *testing.T) {
	r := New(testBundle(), "intake")

	reasons := r.ReasonsFor("review")
	require.Len(t, reasons, 1)
	assert.Equal(t, "client_requested", reasons[0].ID)

	assert.Empty(t, r.ReasonsFor("intake"))
	assert.Empty(t, r.ReasonsFor("nope"))
	assert.True(t, r.IsValidReason("review", "client_requested"))
	assert.False(t, r.IsValidReason("review", "ghost"))
	assert.False(t, r.IsValidReason("review", "signed_off"))
}

func TestCustomFieldsFor(t *testing.T) {
	r := New(testBundle(), "intake")
	assert.Len(t, r.CustomFieldsFor("signed_off"), 1)
	assert.Empty(t, r.CustomFieldsFor("client_requested"))
	assert.Empty(t, r.CustomFieldsFor("unknown"))
}

func TestEffectiveApprovalID(t *testing.T) {
	r := New(testBundle(), "intake")

	tests := []struct {
		name   string
		stage  string
		reason string
		want   string
	}{
		{"stage default", "approved", "signed_off", "rs-stage"},
		{"reason override wins", "approved", "override", "rs-reason"},
		{"no stage chosen", "", "override", ""},
		{"no reason chosen", "approved", "", ""},
		{"nothing configured", "review", "client_requested", ""},
		{"unknown stage", "ghost", "signed_off", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.EffectiveApprovalID(tt.stage, tt.reason))
		})
	}
}

func TestApprovalFieldsSortedByOrder(t *testing.T) {
	r := New(testBundle(), "intake")
	fields := r.ApprovalFieldsFor("rs-stage")
	require.Len(t, fields, 2)
	assert.Equal(t, "f1", fields[0].ID)
	assert.Equal(t, "f2", fields[1].ID)
}

func TestGateActive(t *testing.T) {
	r := New(testBundle(), "intake")

	assert.True(t, r.GateActive("approved", "signed_off"))
	assert.True(t, r.GateActive("approved", "override"))
	assert.False(t, r.GateActive("review", "client_requested"))
	// ruleset id not present in the bundle
	assert.False(t, r.GateActive("archived", "done"))
	assert.False(t, r.GateActive("approved", ""))

	id, fields := r.GateFields("approved", "override")
	assert.Equal(t, "rs-reason", id)
	require.Len(t, fields, 1)
	assert.Equal(t, "g1", fields[0].ID)
}

func TestEmptyRulesetIsInert(t *testing.T) {
	bundle := testBundle()
	bundle.Stages[1].StageApprovalID = "rs-empty"
	bundle.Stages[1].ValidReasonIDs = []string{"client_requested"}
	r := New(bundle, "review")

	assert.Equal(t, "rs-empty", r.EffectiveApprovalID("intake", "client_requested"))
	assert.False(t, r.GateActive("intake", "client_requested"))
}
