// Package workflow sequences a project stage transition: selection and field validation,
// the optional approval gate, the optimistic commit, best-effort side effects and the
// hand-off to the notification step.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stageflow/pkg/approval"
	"stageflow/pkg/backend"
	"stageflow/pkg/cache"
	"stageflow/pkg/fields"
	"stageflow/pkg/logx"
	"stageflow/pkg/metrics"
	"stageflow/pkg/model"
	"stageflow/pkg/notify"
	"stageflow/pkg/persistence"
	"stageflow/pkg/queries"
	"stageflow/pkg/resolver"
	"stageflow/pkg/upload"
)

// BundleSource supplies the configuration bundle. *resolver.BundleCache implements it.
type BundleSource interface {
	Get(ctx context.Context, projectID string) (model.Bundle, error)
}

// Journal records workflow history. *persistence.Journal implements it.
type Journal interface {
	StartSession(ctx context.Context, s persistence.Session) error
	EndSession(ctx context.Context, sessionID, status, toStage string, at time.Time) error
	RecordTransition(ctx context.Context, rec persistence.TransitionRecord) error
	RecordSideEffectFailure(ctx context.Context, f persistence.SideEffectFailure) error
	RecordNotification(ctx context.Context, n persistence.NotificationResolution) error
}

// Deps are the collaborators of a Workflow. Backend, Projects and Bundles are required.
type Deps struct {
	Backend       backend.Backend
	Projects      *cache.ProjectCache
	Bundles       BundleSource
	Feedback      Feedback
	Journal       Journal
	Recorder      metrics.Recorder
	Drafter       notify.Drafter
	Placeholder   string
	MaxUploadSize int64

	// NoPreselect starts the notification step with no recipients selected.
	NoPreselect bool
}

// Result is what a successful submit produced.
type Result struct {
	Project       model.Project
	SideEffects   queries.Report
	SideEffectErr *SideEffectError
	Notification  *notify.Orchestrator
}

// Workflow is one open transition session for one project. Create it with New, call
// Open, collect the operator's choices, then Submit.
//
//nolint:govet // fieldalignment: grouped by concern
type Workflow struct {
	deps      Deps
	project   model.Project
	sessionID string
	logger    *logx.Logger

	mu          sync.Mutex
	state       State
	transitions []StateTransition
	submitting  bool
	uploading   bool

	resolver          *resolver.Resolver
	stageID           string
	reasonID          string
	notes             string
	customResponses   map[string]model.FieldResponse
	approvalResponses map[string]model.FieldResponse
	uploads           *upload.Pipeline
	queries           *queries.Batch
	notification      *notify.Orchestrator
	committedStage    string
}

// New creates a workflow in IDLE for project.
func New(deps Deps, project model.Project) *Workflow {
	if deps.Feedback == nil {
		deps.Feedback = NewLogFeedback()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop()
	}
	w := &Workflow{
		deps:      deps,
		project:   project,
		sessionID: uuid.NewString(),
		logger:    logx.NewLogger("workflow"),
		state:     StateIdle,
	}
	w.resetLocal()
	return w
}

func (w *Workflow) resetLocal() {
	w.stageID, w.reasonID, w.notes = "", "", ""
	w.customResponses = make(map[string]model.FieldResponse)
	w.approvalResponses = make(map[string]model.FieldResponse)
	w.uploads = upload.NewPipeline(w.deps.Backend, w.project.ID, w.deps.MaxUploadSize, w.deps.Recorder)
	w.queries = queries.NewBatch()
}

// SessionID identifies this workflow in logs and the journal.
func (w *Workflow) SessionID() string {
	return w.sessionID
}

// Project is the project as it was when the workflow was created.
func (w *Workflow) Project() model.Project {
	return w.project
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Transitions returns the state history.
func (w *Workflow) Transitions() []StateTransition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]StateTransition{}, w.transitions...)
}

// Open fetches the configuration bundle and moves to CONFIGURING.
func (w *Workflow) Open(ctx context.Context) error {
	ctx = logx.WithSession(ctx, w.sessionID)
	if state := w.State(); state != StateIdle {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, state)
	}

	bundle, err := w.deps.Bundles.Get(ctx, w.project.ID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.resolver = resolver.New(bundle, w.project.Status)
	w.mu.Unlock()

	if w.deps.Journal != nil {
		if err := w.deps.Journal.StartSession(ctx, persistence.Session{
			SessionID: w.sessionID,
			ProjectID: w.project.ID,
			FromStage: w.project.Status,
			Status:    persistence.SessionStatusOpen,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			w.logger.Warn("journal: failed to start session %s: %v", w.sessionID, err)
		}
	}
	return w.transitionTo(ctx, StateConfiguring, map[string]any{"project_id": w.project.ID})
}

// transitionTo validates and records a state change.
func (w *Workflow) transitionTo(ctx context.Context, to State, metadata map[string]any) error {
	w.mu.Lock()
	from := w.state
	if !ValidTransitions.IsValidTransition(from, to) {
		w.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	tr := StateTransition{FromState: from, ToState: to, Timestamp: time.Now().UTC(), Metadata: metadata}
	w.transitions = append(w.transitions, tr)
	w.state = to
	w.mu.Unlock()

	w.logger.Info("🔄 %s: %s → %s", w.project.ID, from, to)
	logx.DebugState(ctx, "workflow", "transition", to.String(), "from", from.String())
	w.deps.Recorder.ObserveTransition(from.String(), to.String())
	if w.deps.Journal != nil {
		rec := persistence.TransitionRecord{
			SessionID: w.sessionID,
			FromState: from.String(),
			ToState:   to.String(),
			At:        tr.Timestamp,
			Metadata:  metadata,
		}
		if err := w.deps.Journal.RecordTransition(ctx, rec); err != nil {
			w.logger.Warn("journal: failed to record %s → %s: %v", from, to, err)
		}
	}
	return nil
}

// editableLocked returns an error unless the operator may change selections now.
func (w *Workflow) editableLocked() error {
	if w.state == StateClosed {
		return ErrClosed
	}
	if w.submitting {
		return ErrSubmitInFlight
	}
	if w.state != StateConfiguring {
		return fmt.Errorf("%w: cannot edit in %s", ErrInvalidTransition, w.state)
	}
	return nil
}

// AvailableStages lists the stages the project can move to.
func (w *Workflow) AvailableStages() []model.StageDefinition {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolver == nil {
		return nil
	}
	return w.resolver.AvailableTargetStages()
}

// Reasons lists the reasons valid for the chosen stage.
func (w *Workflow) Reasons() []model.ChangeReason {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolver == nil || w.stageID == "" {
		return nil
	}
	return w.resolver.ReasonsFor(w.stageID)
}

// CustomFields lists the custom fields of the chosen reason.
func (w *Workflow) CustomFields() []model.CustomFieldDefinition {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolver == nil || w.reasonID == "" {
		return nil
	}
	return w.resolver.CustomFieldsFor(w.reasonID)
}

// ApprovalFields lists the approval checklist for the chosen stage and reason. It is empty
// when the gate is inactive.
func (w *Workflow) ApprovalFields() []model.ApprovalFieldRule {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolver == nil {
		return nil
	}
	_, f := w.resolver.GateFields(w.stageID, w.reasonID)
	return f
}

// GateActive reports whether submit will go through the approval gate.
func (w *Workflow) GateActive() bool {
	return len(w.ApprovalFields()) > 0
}

// Selection returns the chosen stage and reason ids.
func (w *Workflow) Selection() (stageID, reasonID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stageID, w.reasonID
}

// SelectStage chooses the target stage. A chosen reason that is not valid for it is
// cleared.
func (w *Workflow) SelectStage(stageID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if stageID == w.resolver.CurrentStageID() {
		return fmt.Errorf("%w: %s is the current stage", ErrUnknownStage, stageID)
	}
	if _, ok := w.resolver.Stage(stageID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}
	w.stageID = stageID
	if w.reasonID != "" && !w.resolver.IsValidReason(stageID, w.reasonID) {
		w.reasonID = ""
		w.customResponses = make(map[string]model.FieldResponse)
	}
	w.approvalResponses = make(map[string]model.FieldResponse)
	return nil
}

// SelectReason chooses the change reason for the chosen stage.
func (w *Workflow) SelectReason(reasonID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if !w.resolver.IsValidReason(w.stageID, reasonID) {
		return fmt.Errorf("%w: %s", ErrUnknownReason, reasonID)
	}
	if reasonID != w.reasonID {
		w.customResponses = make(map[string]model.FieldResponse)
		w.approvalResponses = make(map[string]model.FieldResponse)
	}
	w.reasonID = reasonID
	return nil
}

// SetNotes sets the free-text notes sent with the commit.
func (w *Workflow) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.notes = notes
	return nil
}

// SetCustomResponse records an answer to a custom field.
func (w *Workflow) SetCustomResponse(resp model.FieldResponse) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.customResponses[resp.FieldID] = resp
	return nil
}

// SetApprovalResponse records an answer to an approval checklist field.
func (w *Workflow) SetApprovalResponse(resp model.FieldResponse) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.approvalResponses[resp.FieldID] = resp
	return nil
}

// UploadFiles uploads files one at a time. A failure is an *UploadError naming the file;
// attachments uploaded before it are kept.
func (w *Workflow) UploadFiles(ctx context.Context, files []upload.LocalFile) ([]model.Attachment, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.uploading {
		w.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	w.uploading = true
	pipeline := w.uploads
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.uploading = false
		w.mu.Unlock()
	}()
	return pipeline.Upload(ctx, files)
}

// Attachments lists the files uploaded so far.
func (w *Workflow) Attachments() []model.Attachment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploads.Attachments()
}

// SelectedFiles lists the files in the upload working set.
func (w *Workflow) SelectedFiles() []upload.LocalFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploads.Selected()
}

// Queries is the pending ad-hoc query batch. It is persisted after a successful commit.
func (w *Workflow) Queries() *queries.Batch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queries
}

// Notification is the open notification step, or nil.
func (w *Workflow) Notification() *notify.Orchestrator {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notification
}

// Validate runs the local checks of submit without changing state.
func (w *Workflow) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolver == nil {
		return fmt.Errorf("%w: workflow is not open", ErrInvalidTransition)
	}
	if err := w.validateSelectionLocked(); err != nil {
		return err
	}
	if err := w.validateCustomFieldsLocked(); err != nil {
		return err
	}
	if _, gate := w.resolver.GateFields(w.stageID, w.reasonID); len(gate) > 0 {
		if res := approval.BuildSchema(gate).Validate(w.approvalResponses); !res.Valid {
			return &ValidationError{Kind: KindApproval, Messages: res.Errors}
		}
	}
	return nil
}

func (w *Workflow) validateSelectionLocked() error {
	var msgs []string
	if w.stageID == "" {
		msgs = append(msgs, "Stage is required")
	}
	if w.reasonID == "" {
		msgs = append(msgs, "Reason is required")
	}
	if len(msgs) == 0 {
		if w.stageID == w.resolver.CurrentStageID() {
			msgs = append(msgs, "Stage must differ from the current stage")
		} else if !w.resolver.IsValidReason(w.stageID, w.reasonID) {
			msgs = append(msgs, "Reason is not valid for the chosen stage")
		}
	}
	if len(msgs) > 0 {
		return &ValidationError{Kind: KindSelection, Messages: msgs}
	}
	return nil
}

func (w *Workflow) validateCustomFieldsLocked() error {
	report := fields.Validate(w.resolver.CustomFieldsFor(w.reasonID), w.customResponses)
	if !report.Valid {
		return &ValidationError{Kind: KindCustomFields, Messages: report.Errors}
	}
	return nil
}

// submission is the immutable input of one submit, captured under the lock.
type submission struct {
	stageID   string
	reasonID  string
	rulesetID string
	gate      []model.ApprovalFieldRule
	approvals map[string]model.FieldResponse
	request   model.TransitionRequest
	queries   *queries.Batch
	uploads   *upload.Pipeline
}

// Submit validates, runs the approval gate, commits the transition and performs side
// effects. Validation failures return *ValidationError and touch nothing. Approval or
// commit failures return *CommitError with the workflow back in CONFIGURING. Side-effect
// failures never fail Submit; they are reported in Result.SideEffectErr.
func (w *Workflow) Submit(ctx context.Context) (*Result, error) {
	ctx = logx.WithSession(ctx, w.sessionID)

	sub, err := w.beginSubmit()
	if err != nil {
		return nil, err
	}
	defer w.endSubmit()

	if len(sub.gate) > 0 {
		if err := w.runApprovalGate(ctx, sub); err != nil {
			return nil, err
		}
	}

	res, err := w.commit(ctx, sub)
	if err != nil {
		return nil, err
	}

	result := &Result{Project: res.Project}
	result.SideEffects, result.SideEffectErr = w.runSideEffects(ctx, sub)

	if res.Preview == nil {
		w.logger.Info("no notification owed for %s", w.project.ID)
		w.close(ctx, persistence.SessionStatusCommitted)
		return result, nil
	}

	preview := *res.Preview
	if res.Audience != "" {
		preview.Audience = res.Audience
	}
	orch := notify.New(w.project.ID, preview, w.deps.Backend, w.notifyOptions()...)

	w.mu.Lock()
	w.notification = orch
	w.mu.Unlock()
	result.Notification = orch

	if err := w.transitionTo(ctx, StateNotificationPending, map[string]any{
		"dedupe_key": preview.DedupeKey,
		"audience":   string(preview.Audience),
	}); err != nil {
		return result, err
	}
	return result, nil
}

func (w *Workflow) beginSubmit() (*submission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return nil, ErrSubmitInFlight
	}
	if w.uploading {
		return nil, ErrUploadInFlight
	}
	if w.state == StateClosed {
		return nil, ErrClosed
	}
	if w.state != StateConfiguring {
		return nil, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, w.state)
	}
	if err := w.validateSelectionLocked(); err != nil {
		w.deps.Recorder.ObserveValidationFailure(KindSelection)
		return nil, err
	}
	if err := w.validateCustomFieldsLocked(); err != nil {
		w.deps.Recorder.ObserveValidationFailure(KindCustomFields)
		return nil, err
	}

	rulesetID, gate := w.resolver.GateFields(w.stageID, w.reasonID)
	approvals := make(map[string]model.FieldResponse, len(w.approvalResponses))
	for k, v := range w.approvalResponses {
		approvals[k] = v
	}

	w.submitting = true
	return &submission{
		stageID:   w.stageID,
		reasonID:  w.reasonID,
		rulesetID: rulesetID,
		gate:      gate,
		approvals: approvals,
		request: model.TransitionRequest{
			StageID:              w.stageID,
			ReasonID:             w.reasonID,
			Notes:                w.notes,
			Attachments:          w.uploads.Attachments(),
			CustomFieldResponses: fields.Format(w.resolver.CustomFieldsFor(w.reasonID), w.customResponses),
		},
		queries: w.queries,
		uploads: w.uploads,
	}, nil
}

func (w *Workflow) endSubmit() {
	w.mu.Lock()
	w.submitting = false
	w.mu.Unlock()
}

// runApprovalGate validates the checklist and submits it ahead of the commit.
func (w *Workflow) runApprovalGate(ctx context.Context, sub *submission) error {
	schema := approval.BuildSchema(sub.gate)
	if err := w.transitionTo(ctx, StateApprovalPending, map[string]any{"ruleset_id": sub.rulesetID}); err != nil {
		return err
	}

	if res := schema.Validate(sub.approvals); !res.Valid {
		w.deps.Recorder.ObserveValidationFailure(KindApproval)
		if err := w.transitionTo(ctx, StateConfiguring, map[string]any{"approval_errors": len(res.Errors)}); err != nil {
			return err
		}
		return &ValidationError{Kind: KindApproval, Messages: res.Errors}
	}

	start := time.Now()
	payload := schema.Submission(sub.rulesetID, sub.stageID, sub.reasonID, sub.approvals)
	if err := w.deps.Backend.SubmitApproval(ctx, w.project.ID, payload); err != nil {
		w.deps.Recorder.ObserveCommit(metrics.CommitApprovalFailed, time.Since(start))
		return w.fail(ctx, &CommitError{Phase: PhaseApproval, Err: err})
	}
	w.logger.Info("approval %s recorded for %s", sub.rulesetID, w.project.ID)
	return nil
}

// commit applies the optimistic update around the transition call.
func (w *Workflow) commit(ctx context.Context, sub *submission) (model.CommitResult, error) {
	if err := w.transitionTo(ctx, StateCommitting, map[string]any{
		"stage_id":  sub.stageID,
		"reason_id": sub.reasonID,
	}); err != nil {
		return model.CommitResult{}, err
	}

	snap, err := w.deps.Projects.BeginOptimistic(w.project.ID, sub.stageID)
	if err != nil {
		return model.CommitResult{}, w.fail(ctx, &CommitError{Phase: PhaseCommit, Err: fmt.Errorf("%w: %w", ErrSubmitInFlight, err)})
	}

	start := time.Now()
	res, err := w.deps.Backend.CommitTransition(ctx, w.project.ID, sub.request)
	if err != nil {
		snap.Restore()
		w.deps.Recorder.ObserveCommit(metrics.CommitRolledBack, time.Since(start))
		w.logger.Warn("commit of %s → %s failed, cached project restored: %v", w.project.ID, sub.stageID, err)
		return model.CommitResult{}, w.fail(ctx, &CommitError{Phase: PhaseCommit, Err: err})
	}

	snap.Commit()
	w.deps.Projects.Invalidate(cache.KeyProjects, cache.KeyProjectQueries(w.project.ID), cache.KeyQueryCounters)
	w.deps.Recorder.ObserveCommit(metrics.CommitSuccess, time.Since(start))

	w.mu.Lock()
	w.committedStage = sub.stageID
	w.mu.Unlock()

	stageName := sub.stageID
	if st, ok := w.resolver.Stage(sub.stageID); ok && st.Name != "" {
		stageName = st.Name
	}
	w.deps.Feedback.Success(fmt.Sprintf("Stage updated to %s", stageName))
	return res, nil
}

// fail records a failed network step and returns the workflow to CONFIGURING.
func (w *Workflow) fail(ctx context.Context, cerr *CommitError) error {
	if err := w.transitionTo(ctx, StateFailed, map[string]any{
		"phase": string(cerr.Phase),
		"error": cerr.Err.Error(),
	}); err != nil {
		w.logger.Error("failed to record failure: %v", err)
	}
	if err := w.transitionTo(ctx, StateConfiguring, nil); err != nil {
		w.logger.Error("failed to return to configuring: %v", err)
	}
	w.deps.Feedback.Error(cerr.Error())
	return cerr
}

// runSideEffects persists pending queries and clears the one-shot working sets.
func (w *Workflow) runSideEffects(ctx context.Context, sub *submission) (queries.Report, *SideEffectError) {
	if err := w.transitionTo(ctx, StateSideEffects, nil); err != nil {
		w.logger.Error("%v", err)
	}

	report := sub.queries.PersistAll(ctx, w.deps.Backend, w.project.ID)
	w.deps.Recorder.ObserveSideEffects(len(report.Succeeded), len(report.Failed))

	sub.uploads.Reset()
	sub.queries.Reset()

	if len(report.Failed) == 0 {
		return report, nil
	}

	serr := &SideEffectError{Attempted: report.Attempted(), Failures: report.Failed}
	for _, f := range report.Failed {
		w.journalSideEffect(ctx, "query", f.Item.Title, f.Err)
	}
	w.deps.Feedback.Warning(serr.Error())
	return report, serr
}

func (w *Workflow) journalSideEffect(ctx context.Context, kind, item string, cause error) {
	if w.deps.Journal == nil {
		return
	}
	rec := persistence.SideEffectFailure{
		SessionID: w.sessionID,
		Kind:      kind,
		Item:      item,
		Error:     cause.Error(),
		At:        time.Now().UTC(),
	}
	if err := w.deps.Journal.RecordSideEffectFailure(ctx, rec); err != nil {
		w.logger.Warn("journal: failed to record side-effect failure: %v", err)
	}
}

func (w *Workflow) notifyOptions() []notify.Option {
	opts := []notify.Option{
		notify.WithPlaceholder(w.deps.Placeholder),
		notify.WithPreselect(!w.deps.NoPreselect),
		notify.WithRecorder(w.deps.Recorder),
		notify.OnResolve(w.notificationResolved),
	}
	if w.deps.Drafter != nil {
		opts = append(opts, notify.WithDrafter(w.deps.Drafter))
	}
	return opts
}

// notificationResolved closes the workflow once the notification step is terminal.
func (w *Workflow) notificationResolved(r notify.Resolution) {
	ctx := logx.WithSession(context.Background(), w.sessionID)
	if w.deps.Journal != nil {
		rec := persistence.NotificationResolution{
			SessionID: w.sessionID,
			DedupeKey: r.DedupeKey,
			Audience:  string(r.Audience),
			Outcome:   string(r.Outcome),
			At:        time.Now().UTC(),
		}
		if err := w.deps.Journal.RecordNotification(ctx, rec); err != nil {
			w.logger.Warn("journal: failed to record notification %s: %v", r.DedupeKey, err)
		}
	}
	w.close(ctx, persistence.SessionStatusCommitted)
}

// Close discards all workflow-local state. It never affects a committed transition. An
// open notification step is abandoned without a backend call.
func (w *Workflow) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if w.state == StateClosed {
		w.mu.Unlock()
		return nil
	}
	status := persistence.SessionStatusAbandoned
	if w.committedStage != "" {
		status = persistence.SessionStatusCommitted
	}
	pending := w.notification
	w.mu.Unlock()

	if pending != nil {
		if err := pending.Abandon(); errors.Is(err, notify.ErrBusy) {
			return err
		}
	}
	w.close(logx.WithSession(ctx, w.sessionID), status)
	return nil
}

func (w *Workflow) close(ctx context.Context, status string) {
	if err := w.transitionTo(ctx, StateClosed, nil); err != nil {
		return
	}

	w.mu.Lock()
	toStage := w.committedStage
	w.resetLocal()
	w.notification = nil
	w.mu.Unlock()

	if w.deps.Journal != nil {
		if err := w.deps.Journal.EndSession(ctx, w.sessionID, status, toStage, time.Now().UTC()); err != nil {
			w.logger.Warn("journal: failed to end session %s: %v", w.sessionID, err)
		}
	}
}
