// Package model holds the data shared by the stage-transition workflow: the server-supplied
// configuration bundle, projects, transition requests and notification previews.
package model

import "time"

// CustomFieldType enumerates the input shapes a change reason may ask for.
type CustomFieldType string

// Custom field types.
const (
	CustomFieldBoolean     CustomFieldType = "boolean"
	CustomFieldNumber      CustomFieldType = "number"
	CustomFieldShortText   CustomFieldType = "short_text"
	CustomFieldLongText    CustomFieldType = "long_text"
	CustomFieldMultiSelect CustomFieldType = "multi_select"
)

// ApprovalFieldType enumerates the checklist item shapes of an approval ruleset.
type ApprovalFieldType string

// Approval field types.
const (
	ApprovalFieldBoolean      ApprovalFieldType = "boolean"
	ApprovalFieldNumber       ApprovalFieldType = "number"
	ApprovalFieldShortText    ApprovalFieldType = "short_text"
	ApprovalFieldLongText     ApprovalFieldType = "long_text"
	ApprovalFieldSingleSelect ApprovalFieldType = "single_select"
	ApprovalFieldMultiSelect  ApprovalFieldType = "multi_select"
	ApprovalFieldDate         ApprovalFieldType = "date"
)

// ComparisonType is the numeric comparison an approval number field must satisfy.
type ComparisonType string

// Numeric comparisons.
const (
	ComparisonEqualTo     ComparisonType = "equal_to"
	ComparisonLessThan    ComparisonType = "less_than"
	ComparisonGreaterThan ComparisonType = "greater_than"
)

// DateComparisonType is the date comparison an approval date field must satisfy.
type DateComparisonType string

// Date comparisons.
const (
	DateBefore  DateComparisonType = "before"
	DateAfter   DateComparisonType = "after"
	DateBetween DateComparisonType = "between"
	DateExact   DateComparisonType = "exact"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// StageDefinition is a lifecycle stage a project can occupy.
type StageDefinition struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Order           int      `json:"order" yaml:"order"`
	ValidReasonIDs  []string `json:"validReasonIds" yaml:"valid_reason_ids"`
	StageApprovalID string   `json:"stageApprovalId,omitempty" yaml:"stage_approval_id,omitempty"`
}

// ChangeReason justifies a transition into the stages that list it.
type ChangeReason struct {
	ID              string                  `json:"id" yaml:"id"`
	Code            string                  `json:"code" yaml:"code"`
	Label           string                  `json:"label,omitempty" yaml:"label,omitempty"`
	StageApprovalID string                  `json:"stageApprovalId,omitempty" yaml:"stage_approval_id,omitempty"`
	CustomFields    []CustomFieldDefinition `json:"customFields,omitempty" yaml:"custom_fields,omitempty"`
}

// DisplayName returns the label, falling back to the code.
func (r ChangeReason) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}
	return r.Code
}

// CustomFieldDefinition is a reason-specific question captured with the transition.
type CustomFieldDefinition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Type        CustomFieldType `json:"type" yaml:"type"`
	IsRequired  bool            `json:"isRequired" yaml:"is_required"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Options     []string        `json:"options,omitempty" yaml:"options,omitempty"`
}

// ApprovalRuleset groups the checklist a stage or reason requires before commit.
type ApprovalRuleset struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ApprovalFieldRule is a single checklist item. Expectation fields are only meaningful for
// the matching Type.
type ApprovalFieldRule struct {
	ID          string            `json:"id" yaml:"id"`
	RulesetID   string            `json:"rulesetId" yaml:"ruleset_id"`
	Name        string            `json:"name" yaml:"name"`
	Type        ApprovalFieldType `json:"type" yaml:"type"`
	IsRequired  bool              `json:"isRequired" yaml:"is_required"`
	Order       int               `json:"order" yaml:"order"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`

	ExpectedValueBoolean *bool          `json:"expectedValueBoolean,omitempty" yaml:"expected_value_boolean,omitempty"`
	ComparisonType       ComparisonType `json:"comparisonType,omitempty" yaml:"comparison_type,omitempty"`
	ExpectedValueNumber  *float64       `json:"expectedValueNumber,omitempty" yaml:"expected_value_number,omitempty"`

	DateComparisonType DateComparisonType `json:"dateComparisonType,omitempty" yaml:"date_comparison_type,omitempty"`
	ExpectedDate       string             `json:"expectedDate,omitempty" yaml:"expected_date,omitempty"`
	ExpectedDateEnd    string             `json:"expectedDateEnd,omitempty" yaml:"expected_date_end,omitempty"`

	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Bundle is the configuration fetched once per workflow session.
type Bundle struct {
	Stages             []StageDefinition   `json:"stages" yaml:"stages"`
	Reasons            []ChangeReason      `json:"reasons" yaml:"reasons"`
	ApprovalRulesets   []ApprovalRuleset   `json:"approvalRulesets" yaml:"approval_rulesets"`
	ApprovalFieldRules []ApprovalFieldRule `json:"approvalFieldRules" yaml:"approval_field_rules"`
	FetchedAt          time.Time           `json:"-" yaml:"-"`
}
