package workflow

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/mocks"
	"stageflow/pkg/backend"
	"stageflow/pkg/cache"
	"stageflow/pkg/model"
	"stageflow/pkg/notify"
	"stageflow/pkg/persistence"
	"stageflow/pkg/resolver"
	"stageflow/pkg/upload"
)

type recordingFeedback struct {
	mu      sync.Mutex
	entries []string
}

func (f *recordingFeedback) add(level, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, level+": "+msg)
}

func (f *recordingFeedback) Success(msg string) { f.add("success", msg) }
func (f *recordingFeedback) Warning(msg string) { f.add("warning", msg) }
func (f *recordingFeedback) Error(msg string)   { f.add("error", msg) }

func (f *recordingFeedback) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries...)
}

func boolPtr(b bool) *bool { return &b }

func testBundle() model.Bundle {
	return model.Bundle{
		Stages: []model.StageDefinition{
			{ID: "intake", Name: "Intake", Order: 1, ValidReasonIDs: []string{"new"}},
			{ID: "review", Name: "Review", Order: 2, ValidReasonIDs: []string{"client_requested", "budget"}},
			{ID: "approved", Name: "Approved", Order: 3, ValidReasonIDs: []string{"signed_off"}, StageApprovalID: "rs-approve"},
		},
		Reasons: []model.ChangeReason{
			{ID: "new", Code: "new"},
			{ID: "client_requested", Code: "client_requested"},
			{ID: "budget", Code: "budget", CustomFields: []model.CustomFieldDefinition{
				{ID: "amount", Name: "Amount", Type: model.CustomFieldNumber, IsRequired: true},
			}},
			{ID: "signed_off", Code: "signed_off"},
		},
		ApprovalRulesets: []model.ApprovalRuleset{{ID: "rs-approve", Name: "Sign-off"}},
		ApprovalFieldRules: []model.ApprovalFieldRule{
			{ID: "confirmed", RulesetID: "rs-approve", Name: "Confirmed", Type: model.ApprovalFieldBoolean,
				IsRequired: true, Order: 1, ExpectedValueBoolean: boolPtr(true)},
		},
	}
}

func testProject() model.Project {
	due := time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)
	return model.Project{
		ID:         "p1",
		Name:       "Atlas",
		ClientName: "Acme",
		Status:     "intake",
		DueDate:    &due,
		UpdatedAt:  time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
	}
}

type harness struct {
	be       *mocks.MockBackend
	projects *cache.ProjectCache
	feedback *recordingFeedback
	wf       *Workflow
}

func newHarness(t *testing.T, journal Journal) *harness {
	t.Helper()
	be := mocks.NewMockBackend()
	be.ServeBundle(testBundle())
	h := &harness{
		be:       be,
		projects: cache.New([]model.Project{testProject(), {ID: "p2", Status: "review"}}),
		feedback: &recordingFeedback{},
	}
	h.wf = New(Deps{
		Backend:  be,
		Projects: h.projects,
		Bundles:  resolver.NewBundleCache(be, time.Minute, 0),
		Feedback: h.feedback,
		Journal:  journal,
	}, testProject())
	require.NoError(t, h.wf.Open(context.Background()))
	be.Reset()
	return h
}

func (h *harness) choose(t *testing.T, stage, reason string) {
	t.Helper()
	require.NoError(t, h.wf.SelectStage(stage))
	require.NoError(t, h.wf.SelectReason(reason))
}

func TestOpenMovesToConfiguring(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, StateConfiguring, h.wf.State())

	var ids []string
	for _, s := range h.wf.AvailableStages() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"review", "approved"}, ids)

	assert.ErrorIs(t, h.wf.SelectStage("intake"), ErrUnknownStage)
	assert.ErrorIs(t, h.wf.Open(context.Background()), ErrInvalidTransition)
}

func TestSubmitWithoutSelectionNamesBoth(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.wf.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindSelection, verr.Kind)
	assert.Equal(t, []string{"Stage is required", "Reason is required"}, verr.Messages)
	assert.Empty(t, h.be.CallOrder())
	assert.Equal(t, StateConfiguring, h.wf.State())
}

func TestCustomFieldFailureHalts(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "budget")
	require.NoError(t, h.wf.SetCustomResponse(model.FieldResponse{FieldID: "amount", Value: "lots"}))

	_, err := h.wf.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindCustomFields, verr.Kind)
	assert.Empty(t, h.be.CallOrder())
}

func TestReviewClientRequestedClosesWithoutPreview(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	assert.False(t, h.wf.GateActive())
	assert.Empty(t, h.wf.CustomFields())

	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Notification)
	assert.Nil(t, res.SideEffectErr)
	assert.Equal(t, "review", res.Project.Status)

	assert.Equal(t, StateClosed, h.wf.State())
	assert.Equal(t, []string{"CommitTransition"}, h.be.CallOrder())

	p, ok := h.projects.Project("p1")
	require.True(t, ok)
	assert.Equal(t, "review", p.Status)
	assert.True(t, h.projects.IsStale(cache.KeyProjects))
	assert.True(t, h.projects.IsStale(cache.KeyProjectQueries("p1")))
	assert.True(t, h.projects.IsStale(cache.KeyQueryCounters))

	var states []State
	for _, tr := range h.wf.Transitions() {
		states = append(states, tr.ToState)
	}
	assert.Equal(t, []State{StateConfiguring, StateCommitting, StateSideEffects, StateClosed}, states)
	assert.Equal(t, []string{"success: Stage updated to Review"}, h.feedback.all())
}

func TestApprovalRejectsBeforeAnyNetworkCall(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "approved", "signed_off")
	require.True(t, h.wf.GateActive())
	require.NoError(t, h.wf.SetApprovalResponse(model.FieldResponse{FieldID: "confirmed", Bool: boolPtr(false)}))

	_, err := h.wf.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindApproval, verr.Kind)
	require.Len(t, verr.Messages, 1)
	assert.Contains(t, verr.Messages[0], "Confirmed")

	assert.Empty(t, h.be.CallOrder())
	assert.Equal(t, StateConfiguring, h.wf.State())
	p, _ := h.projects.Project("p1")
	assert.Equal(t, "intake", p.Status)
}

func TestApprovalSubmittedBeforeCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "approved", "signed_off")
	require.NoError(t, h.wf.SetApprovalResponse(model.FieldResponse{FieldID: "confirmed", Bool: boolPtr(true)}))

	_, err := h.wf.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"SubmitApproval", "CommitTransition"}, h.be.CallOrder())
	require.Len(t, h.be.ApprovalCalls, 1)
	sub := h.be.ApprovalCalls[0].Payload
	assert.Equal(t, "rs-approve", sub.RulesetID)
	assert.Equal(t, "approved", sub.StageID)
	assert.Equal(t, "signed_off", sub.ReasonID)
}

func TestApprovalFailureSkipsCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "approved", "signed_off")
	require.NoError(t, h.wf.SetApprovalResponse(model.FieldResponse{FieldID: "confirmed", Bool: boolPtr(true)}))
	h.be.FailApprovalWith(errors.New("approval service down"))

	_, err := h.wf.Submit(context.Background())
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, PhaseApproval, cerr.Phase)

	assert.Equal(t, []string{"SubmitApproval"}, h.be.CallOrder())
	assert.Equal(t, StateConfiguring, h.wf.State())
	p, _ := h.projects.Project("p1")
	assert.Equal(t, testProject(), p)
}

func TestCommitFailureRestoresCachedProjectVerbatim(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	h.be.FailCommitWith(errors.New("500 internal"))
	before, _ := h.projects.Project("p1")

	_, err := h.wf.Submit(context.Background())
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, PhaseCommit, cerr.Phase)

	after, _ := h.projects.Project("p1")
	assert.Equal(t, before, after)
	assert.False(t, h.projects.IsStale(cache.KeyProjects))

	assert.Equal(t, StateConfiguring, h.wf.State())
	history := h.wf.Transitions()
	assert.Equal(t, StateFailed, history[len(history)-2].ToState)
	assert.Equal(t, "commit", history[len(history)-2].Metadata["phase"])
	assert.Equal(t, []string{"error: commit failed: 500 internal"}, h.feedback.all())

	// The operator can retry once the backend recovers.
	h.be.CommitTransitionFunc = mocks.NewMockBackend().CommitTransitionFunc
	_, err = h.wf.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateClosed, h.wf.State())
}

func TestSideEffectFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	batch := h.wf.Queries()
	batch.Add(model.QueryItem{Title: "A"})
	batch.Add(model.QueryItem{Title: "B"})
	batch.Add(model.QueryItem{Title: "  "})
	batch.Add(model.QueryItem{Title: "C"})
	h.be.FailQueriesTitled(errors.New("timeout"), "B")

	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.SideEffectErr)
	assert.Equal(t, 3, res.SideEffectErr.Attempted)
	require.Len(t, res.SideEffectErr.Failures, 1)
	assert.Equal(t, "B", res.SideEffectErr.Failures[0].Item.Title)
	assert.Equal(t, "stage updated, but 1 side effect failed", res.SideEffectErr.Error())

	var titles []string
	for _, c := range h.be.QueryCalls {
		titles = append(titles, c.Payload.Title)
	}
	assert.Equal(t, []string{"A", "B", "C"}, titles)

	p, _ := h.projects.Project("p1")
	assert.Equal(t, "review", p.Status)
	assert.Equal(t, []string{
		"success: Stage updated to Review",
		"warning: stage updated, but 1 side effect failed",
	}, h.feedback.all())
	assert.Equal(t, 0, batch.Len())
}

func memFile(name, content string) upload.LocalFile {
	return upload.LocalFile{
		Name: name,
		Size: int64(len(content)),
		Type: "text/plain",
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func TestCommitCarriesAttachmentsNotesAndFields(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "budget")
	require.NoError(t, h.wf.SetNotes("per client call"))
	require.NoError(t, h.wf.SetCustomResponse(model.FieldResponse{FieldID: "amount", Value: "1200.50"}))

	_, err := h.wf.UploadFiles(context.Background(), []upload.LocalFile{memFile("a.txt", "alpha"), memFile("b.txt", "beta")})
	require.NoError(t, err)

	_, err = h.wf.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, h.be.CommitCalls, 1)
	req := h.be.CommitCalls[0].Payload
	assert.Equal(t, "review", req.StageID)
	assert.Equal(t, "budget", req.ReasonID)
	assert.Equal(t, "per client call", req.Notes)
	require.Len(t, req.Attachments, 2)
	assert.Equal(t, "projects/p1/a.txt", req.Attachments[0].ObjectPath)
	require.Len(t, req.CustomFieldResponses, 1)
	assert.Equal(t, "Amount", req.CustomFieldResponses[0].FieldName)
	assert.Equal(t, "1200.5", req.CustomFieldResponses[0].Value)
}

func TestUploadFailureIsUploadError(t *testing.T) {
	h := newHarness(t, nil)
	h.be.FailTransferOf("b.txt", errors.New("403"))

	atts, err := h.wf.UploadFiles(context.Background(), []upload.LocalFile{
		memFile("a.txt", "alpha"), memFile("b.txt", "beta"), memFile("c.txt", "gamma"),
	})
	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "b.txt", uerr.FileName)
	require.Len(t, atts, 1)
	assert.Len(t, h.wf.Attachments(), 1)
	assert.Len(t, h.wf.SelectedFiles(), 1)
	assert.Equal(t, StateConfiguring, h.wf.State())
}

func TestSubmitWaitsForRunningUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")

	started := make(chan struct{})
	release := make(chan struct{})
	h.be.TransferFunc = func(context.Context, backend.UploadTarget, backend.FileMeta, []byte) error {
		close(started)
		<-release
		return nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := h.wf.UploadFiles(ctx, []upload.LocalFile{memFile("a.txt", "alpha")})
		done <- err
	}()
	<-started

	_, err := h.wf.Submit(ctx)
	assert.ErrorIs(t, err, ErrUploadInFlight)
	_, err = h.wf.UploadFiles(ctx, []upload.LocalFile{memFile("b.txt", "beta")})
	assert.ErrorIs(t, err, ErrUploadInFlight)
	assert.Empty(t, h.wf.Attachments())
	assert.Len(t, h.wf.SelectedFiles(), 1)
	assert.Equal(t, StateConfiguring, h.wf.State())
	assert.Empty(t, h.be.CommitCalls)

	close(release)
	require.NoError(t, <-done)

	_, err = h.wf.Submit(ctx)
	require.NoError(t, err)
	require.Len(t, h.be.CommitCalls, 1)
	require.Len(t, h.be.CommitCalls[0].Payload.Attachments, 1)
	assert.Equal(t, "a.txt", h.be.CommitCalls[0].Payload.Attachments[0].FileName)
}

func TestNotificationStepClosesWorkflowOnSend(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	h.be.RespondToCommitWith(&model.NotificationPreview{
		Subject:    "Hello {recipient_first_names}",
		Body:       "Atlas is in review.",
		DedupeKey:  "dk-9",
		Recipients: []model.Recipient{{ID: "r1", Name: "Doe, Jane", HasEmail: true}},
	}, model.AudienceClient)

	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.Equal(t, StateNotificationPending, h.wf.State())
	assert.Same(t, res.Notification, h.wf.Notification())
	assert.Equal(t, model.AudienceClient, res.Notification.Audience())
	assert.Equal(t, "Hello Jane", res.Notification.Draft().Subject)

	_, err = h.wf.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = res.Notification.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateClosed, h.wf.State())
	assert.Nil(t, h.wf.Notification())
}

func TestNotificationRecipientsPreselectedByDefault(t *testing.T) {
	preview := &model.NotificationPreview{
		Subject:   "Hello {recipient_first_names}",
		DedupeKey: "dk-11",
		Recipients: []model.Recipient{
			{ID: "r1", Name: "Doe, Jane", HasEmail: true},
			{ID: "r2", Name: "Bo Chen", HasEmail: true},
		},
	}

	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	h.be.RespondToCommitWith(preview, model.AudienceClient)
	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, res.Notification.Selected(model.ChannelEmail))

	be := mocks.NewMockBackend()
	be.ServeBundle(testBundle())
	be.RespondToCommitWith(preview, model.AudienceClient)
	wf := New(Deps{
		Backend:     be,
		Projects:    cache.New([]model.Project{testProject()}),
		Bundles:     resolver.NewBundleCache(be, time.Minute, 0),
		NoPreselect: true,
	}, testProject())
	require.NoError(t, wf.Open(context.Background()))
	require.NoError(t, wf.SelectStage("review"))
	require.NoError(t, wf.SelectReason("client_requested"))
	res, err = wf.Submit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Notification.Selected(model.ChannelEmail))
}

func TestCloseAbandonsOpenNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	h.be.RespondToCommitWith(&model.NotificationPreview{
		Subject:    "Hello {recipient_first_names}",
		Body:       "Atlas is in review.",
		DedupeKey:  "dk-10",
		Recipients: []model.Recipient{{ID: "r1", Name: "Doe, Jane", HasEmail: true}},
	}, model.AudienceClient)

	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Notification)

	require.NoError(t, h.wf.Close(context.Background()))
	assert.Equal(t, StateClosed, h.wf.State())
	assert.Equal(t, notify.OutcomeAbandoned, res.Notification.Outcome())

	_, err = res.Notification.Send(context.Background())
	assert.ErrorIs(t, err, notify.ErrResolved)
	_, err = res.Notification.Suppress(context.Background())
	assert.ErrorIs(t, err, notify.ErrResolved)
	assert.ErrorIs(t, res.Notification.Skip(), notify.ErrResolved)
	assert.Empty(t, h.be.NotificationCalls)
}

func TestSubmitWhileCommittingIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")

	entered := make(chan struct{})
	release := make(chan struct{})
	h.be.CommitTransitionFunc = func(_ context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
		close(entered)
		<-release
		return model.CommitResult{Project: model.Project{ID: projectID, Status: req.StageID}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.wf.Submit(context.Background())
		done <- err
	}()
	<-entered

	assert.Equal(t, StateCommitting, h.wf.State())
	_, err := h.wf.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, h.wf.SetNotes("x"), ErrSubmitInFlight)
	assert.ErrorIs(t, h.wf.Close(context.Background()), ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, h.be.CommitCalls, 1)
}

func TestSecondWorkflowBlockedWhileCacheCommitInFlight(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.projects.BeginOptimistic("p2", "approved")
	require.NoError(t, err)
	defer snap.Restore()

	h.choose(t, "review", "client_requested")
	_, err = h.wf.Submit(context.Background())
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.Empty(t, h.be.CommitCalls)
	assert.Equal(t, StateConfiguring, h.wf.State())
}

func TestCloseBeforeCommitDiscardsState(t *testing.T) {
	h := newHarness(t, nil)
	h.choose(t, "review", "client_requested")
	h.wf.Queries().Add(model.QueryItem{Title: "follow up"})

	require.NoError(t, h.wf.Close(context.Background()))
	assert.Equal(t, StateClosed, h.wf.State())
	stage, reason := h.wf.Selection()
	assert.Empty(t, stage)
	assert.Empty(t, reason)
	assert.Equal(t, 0, h.wf.Queries().Len())
	assert.Empty(t, h.be.CallOrder())

	assert.ErrorIs(t, h.wf.SelectStage("review"), ErrClosed)
	_, err := h.wf.Submit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, h.wf.Close(context.Background()))
}

func TestJournalRecordsSession(t *testing.T) {
	j, err := persistence.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	h := newHarness(t, j)
	h.choose(t, "review", "client_requested")
	h.wf.Queries().Add(model.QueryItem{Title: "B"})
	h.be.FailQueriesTitled(errors.New("timeout"), "B")
	h.be.RespondToCommitWith(&model.NotificationPreview{
		Body:       "Moved.",
		DedupeKey:  "dk-1",
		Recipients: []model.Recipient{{ID: "r1", Name: "Jane", HasEmail: true}},
	}, model.AudienceStaff)

	res, err := h.wf.Submit(context.Background())
	require.NoError(t, err)
	_, err = res.Notification.Suppress(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := j.GetSession(ctx, h.wf.SessionID())
	require.NoError(t, err)
	assert.Equal(t, persistence.SessionStatusCommitted, sess.Status)
	assert.Equal(t, "review", sess.ToStage)
	assert.NotNil(t, sess.EndedAt)

	transitions, err := j.ListTransitions(ctx, h.wf.SessionID())
	require.NoError(t, err)
	assert.Equal(t, StateClosed.String(), transitions[len(transitions)-1].ToState)

	failures, err := j.ListSideEffectFailures(ctx, h.wf.SessionID())
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "B", failures[0].Item)

	resolutions, err := j.NotificationsByDedupeKey(ctx, "dk-1")
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, string(notify.OutcomeSuppressed), resolutions[0].Outcome)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, ValidTransitions.IsValidTransition(StateConfiguring, StateClosed))
	assert.True(t, ValidTransitions.IsValidTransition(StateFailed, StateConfiguring))
	assert.False(t, ValidTransitions.IsValidTransition(StateConfiguring, StateSideEffects))
	assert.False(t, ValidTransitions.IsValidTransition(StateClosed, StateConfiguring))
	assert.False(t, ValidTransitions.IsValidTransition(StateSideEffects, StateCommitting))
}
