package model

import "time"

// Project is the unit of work moved between stages.
type Project struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ClientName string     `json:"clientName,omitempty"`
	Status     string     `json:"status"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Attachment references a file already moved into durable storage.
type Attachment struct {
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	FileType   string `json:"fileType"`
	ObjectPath string `json:"objectPath"`
}

// FieldResponse is an operator's answer to a custom or approval field. Value carries text,
// numeric input, single selections and dates (DateLayout); Bool and Selected carry the
// boolean and multi-select shapes.
type FieldResponse struct {
	FieldID  string   `json:"fieldId"`
	Value    string   `json:"value,omitempty"`
	Bool     *bool    `json:"bool,omitempty"`
	Selected []string `json:"selected,omitempty"`
}

// FormattedFieldResponse is the wire shape of a custom-field answer on commit.
type FormattedFieldResponse struct {
	FieldID   string          `json:"fieldId"`
	FieldName string          `json:"fieldName"`
	FieldType CustomFieldType `json:"fieldType"`
	Value     string          `json:"value"`
}

// TransitionRequest is the commit payload.
type TransitionRequest struct {
	StageID              string                   `json:"stageId"`
	ReasonID             string                   `json:"reasonId"`
	Notes                string                   `json:"notes,omitempty"`
	Attachments          []Attachment             `json:"attachments,omitempty"`
	CustomFieldResponses []FormattedFieldResponse `json:"customFieldResponses,omitempty"`
}

// ApprovalSubmission records the checklist answers before the transition is committed.
type ApprovalSubmission struct {
	RulesetID string          `json:"rulesetId"`
	StageID   string          `json:"stageId"`
	ReasonID  string          `json:"reasonId"`
	Responses []FieldResponse `json:"responses"`
}

// QueryItem is an ad-hoc follow-up created after a successful transition.
type QueryItem struct {
	LocalID     string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}
