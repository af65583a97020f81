// Package resolver turns a configuration bundle into stage- and reason-scoped views.
//
// Every lookup is pure. A dangling id reference yields an empty result instead of an
// error, so a malformed bundle degrades to "no reasons available" or "no approval
// required" rather than blocking the workflow.
package resolver

import (
	"sort"

	"stageflow/pkg/model"
)

// Resolver answers questions about one bundle for one project.
type Resolver struct {
	bundle         model.Bundle
	currentStageID string

	stages   map[string]model.StageDefinition
	reasons  map[string]model.ChangeReason
	rulesets map[string]model.ApprovalRuleset
}

// New indexes bundle for a project currently in currentStageID.
func New(bundle model.Bundle, currentStageID string) *Resolver {
	r := &Resolver{
		bundle:         bundle,
		currentStageID: currentStageID,
		stages:         make(map[string]model.StageDefinition, len(bundle.Stages)),
		reasons:        make(map[string]model.ChangeReason, len(bundle.Reasons)),
		rulesets:       make(map[string]model.ApprovalRuleset, len(bundle.ApprovalRulesets)),
	}
	for _, s := range bundle.Stages {
		r.stages[s.ID] = s
	}
	for _, reason := range bundle.Reasons {
		r.reasons[reason.ID] = reason
	}
	for _, rs := range bundle.ApprovalRulesets {
		r.rulesets[rs.ID] = rs
	}
	return r
}

// CurrentStageID returns the stage the project occupies.
func (r *Resolver) CurrentStageID() string {
	return r.currentStageID
}

// Stage looks up a stage by id.
func (r *Resolver) Stage(id string) (model.StageDefinition, bool) {
	s, ok := r.stages[id]
	return s, ok
}

// Reason looks up a reason by id.
func (r *Resolver) Reason(id string) (model.ChangeReason, bool) {
	reason, ok := r.reasons[id]
	return reason, ok
}

// AvailableTargetStages returns every stage except the current one, by Order.
func (r *Resolver) AvailableTargetStages() []model.StageDefinition {
	out := make([]model.StageDefinition, 0, len(r.bundle.Stages))
	for _, s := range r.bundle.Stages {
		if s.ID == r.currentStageID {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ReasonsFor returns the reasons listed in the stage's ValidReasonIDs, in that order.
// Unknown ids are skipped.
func (r *Resolver) ReasonsFor(stageID string) []model.ChangeReason {
	stage, ok := r.stages[stageID]
	if !ok {
		return nil
	}
	out := make([]model.ChangeReason, 0, len(stage.ValidReasonIDs))
	for _, id := range stage.ValidReasonIDs {
		if reason, ok := r.reasons[id]; ok {
			out = append(out, reason)
		}
	}
	return out
}

// IsValidReason reports whether reasonID may be used to transition into stageID.
func (r *Resolver) IsValidReason(stageID, reasonID string) bool {
	stage, ok := r.stages[stageID]
	if !ok {
		return false
	}
	if _, ok := r.reasons[reasonID]; !ok {
		return false
	}
	for _, id := range stage.ValidReasonIDs {
		if id == reasonID {
			return true
		}
	}
	return false
}

// CustomFieldsFor returns the reason's custom fields.
func (r *Resolver) CustomFieldsFor(reasonID string) []model.CustomFieldDefinition {
	reason, ok := r.reasons[reasonID]
	if !ok {
		return nil
	}
	return reason.CustomFields
}

// EffectiveApprovalID resolves the approval ruleset for a (stage, reason) choice: the
// reason's override when set, otherwise the stage default. It is empty when either side is
// not chosen.
func (r *Resolver) EffectiveApprovalID(stageID, reasonID string) string {
	if stageID == "" || reasonID == "" {
		return ""
	}
	if reason, ok := r.reasons[reasonID]; ok && reason.StageApprovalID != "" {
		return reason.StageApprovalID
	}
	if stage, ok := r.stages[stageID]; ok {
		return stage.StageApprovalID
	}
	return ""
}

// ApprovalRulesetFor looks up a ruleset by id.
func (r *Resolver) ApprovalRulesetFor(id string) (model.ApprovalRuleset, bool) {
	if id == "" {
		return model.ApprovalRuleset{}, false
	}
	rs, ok := r.rulesets[id]
	return rs, ok
}

// ApprovalFieldsFor returns the ruleset's field rules sorted by Order. A ruleset id that
// is not in the bundle has no fields.
func (r *Resolver) ApprovalFieldsFor(rulesetID string) []model.ApprovalFieldRule {
	if _, ok := r.ApprovalRulesetFor(rulesetID); !ok {
		return nil
	}
	var out []model.ApprovalFieldRule
	for _, rule := range r.bundle.ApprovalFieldRules {
		if rule.RulesetID == rulesetID {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// GateFields returns the approval fields that apply to the choice. An empty result means
// the approval gate is inactive.
func (r *Resolver) GateFields(stageID, reasonID string) (string, []model.ApprovalFieldRule) {
	id := r.EffectiveApprovalID(stageID, reasonID)
	fields := r.ApprovalFieldsFor(id)
	if len(fields) == 0 {
		return "", nil
	}
	return id, fields
}

// GateActive reports whether an approval checklist must pass before committing.
func (r *Resolver) GateActive(stageID, reasonID string) bool {
	_, fields := r.GateFields(stageID, reasonID)
	return len(fields) > 0
}
