package mocks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"stageflow/pkg/backend"
	"stageflow/pkg/model"
)

// ProjectCall is a recorded call that carries a project id and a payload.
type ProjectCall[T any] struct {
	ProjectID string
	Payload   T
}

// TransferCall records one byte transfer.
type TransferCall struct {
	Target backend.UploadTarget
	Meta   backend.FileMeta
	Data   []byte
}

// MockBackend implements backend.Backend in memory.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockBackend struct {
	ListProjectsFunc        func(ctx context.Context) ([]model.Project, error)
	FetchBundleFunc         func(ctx context.Context, projectID string) (model.Bundle, error)
	SubmitApprovalFunc      func(ctx context.Context, projectID string, sub model.ApprovalSubmission) error
	CommitTransitionFunc    func(ctx context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error)
	CreateQueryFunc         func(ctx context.Context, projectID string, item model.QueryItem) error
	RequestUploadTargetFunc func(ctx context.Context, projectID string, meta backend.FileMeta) (backend.UploadTarget, error)
	TransferFunc            func(ctx context.Context, target backend.UploadTarget, meta backend.FileMeta, data []byte) error
	SendNotificationFunc    func(ctx context.Context, projectID string, req model.NotificationRequest) (model.NotificationResult, error)

	FetchBundleCalls  []string
	ApprovalCalls     []ProjectCall[model.ApprovalSubmission]
	CommitCalls       []ProjectCall[model.TransitionRequest]
	QueryCalls        []ProjectCall[model.QueryItem]
	UploadTargetCalls []ProjectCall[backend.FileMeta]
	TransferCalls     []TransferCall
	NotificationCalls []ProjectCall[model.NotificationRequest]

	order []string
	mu    sync.Mutex
}

// NewMockBackend creates a backend whose calls all succeed. CommitTransition echoes the
// target stage and returns no preview.
func NewMockBackend() *MockBackend {
	m := &MockBackend{}
	m.ListProjectsFunc = func(context.Context) ([]model.Project, error) { return nil, nil }
	m.FetchBundleFunc = func(context.Context, string) (model.Bundle, error) { return model.Bundle{}, nil }
	m.SubmitApprovalFunc = func(context.Context, string, model.ApprovalSubmission) error { return nil }
	m.CommitTransitionFunc = func(_ context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
		return model.CommitResult{Project: model.Project{ID: projectID, Status: req.StageID}}, nil
	}
	m.CreateQueryFunc = func(context.Context, string, model.QueryItem) error { return nil }
	m.RequestUploadTargetFunc = func(_ context.Context, projectID string, meta backend.FileMeta) (backend.UploadTarget, error) {
		path := fmt.Sprintf("projects/%s/%s", projectID, meta.FileName)
		return backend.UploadTarget{UploadURL: "https://storage.test/" + path, ObjectPath: path}, nil
	}
	m.TransferFunc = func(context.Context, backend.UploadTarget, backend.FileMeta, []byte) error { return nil }
	m.SendNotificationFunc = func(_ context.Context, _ string, req model.NotificationRequest) (model.NotificationResult, error) {
		if req.Suppress {
			return model.NotificationResult{Suppressed: true}, nil
		}
		return model.NotificationResult{
			Sent:       true,
			EmailCount: len(req.EmailRecipientIDs),
			PushCount:  len(req.PushRecipientIDs),
			SMSCount:   len(req.SMSRecipientIDs),
		}, nil
	}
	return m
}

func (m *MockBackend) record(name string, fn func()) {
	m.mu.Lock()
	m.order = append(m.order, name)
	fn()
	m.mu.Unlock()
}

// CallOrder returns method names in the order they were invoked.
func (m *MockBackend) CallOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// ListProjects implements backend.ProjectLister.
func (m *MockBackend) ListProjects(ctx context.Context) ([]model.Project, error) {
	m.record("ListProjects", func() {})
	return m.ListProjectsFunc(ctx)
}

// FetchBundle implements backend.ConfigSource.
func (m *MockBackend) FetchBundle(ctx context.Context, projectID string) (model.Bundle, error) {
	m.record("FetchBundle", func() { m.FetchBundleCalls = append(m.FetchBundleCalls, projectID) })
	return m.FetchBundleFunc(ctx, projectID)
}

// SubmitApproval implements backend.ApprovalSubmitter.
func (m *MockBackend) SubmitApproval(ctx context.Context, projectID string, sub model.ApprovalSubmission) error {
	m.record("SubmitApproval", func() {
		m.ApprovalCalls = append(m.ApprovalCalls, ProjectCall[model.ApprovalSubmission]{projectID, sub})
	})
	return m.SubmitApprovalFunc(ctx, projectID, sub)
}

// CommitTransition implements backend.TransitionCommitter.
func (m *MockBackend) CommitTransition(ctx context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
	m.record("CommitTransition", func() {
		m.CommitCalls = append(m.CommitCalls, ProjectCall[model.TransitionRequest]{projectID, req})
	})
	return m.CommitTransitionFunc(ctx, projectID, req)
}

// CreateQuery implements backend.QueryCreator.
func (m *MockBackend) CreateQuery(ctx context.Context, projectID string, item model.QueryItem) error {
	m.record("CreateQuery", func() {
		m.QueryCalls = append(m.QueryCalls, ProjectCall[model.QueryItem]{projectID, item})
	})
	return m.CreateQueryFunc(ctx, projectID, item)
}

// RequestUploadTarget implements backend.Storage.
func (m *MockBackend) RequestUploadTarget(ctx context.Context, projectID string, meta backend.FileMeta) (backend.UploadTarget, error) {
	m.record("RequestUploadTarget", func() {
		m.UploadTargetCalls = append(m.UploadTargetCalls, ProjectCall[backend.FileMeta]{projectID, meta})
	})
	return m.RequestUploadTargetFunc(ctx, projectID, meta)
}

// Transfer implements backend.Storage. The body is read fully before TransferFunc runs.
func (m *MockBackend) Transfer(ctx context.Context, target backend.UploadTarget, meta backend.FileMeta, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.record("Transfer", func() {
		m.TransferCalls = append(m.TransferCalls, TransferCall{Target: target, Meta: meta, Data: data})
	})
	return m.TransferFunc(ctx, target, meta, data)
}

// SendNotification implements backend.NotificationSender.
func (m *MockBackend) SendNotification(ctx context.Context, projectID string, req model.NotificationRequest) (model.NotificationResult, error) {
	m.record("SendNotification", func() {
		m.NotificationCalls = append(m.NotificationCalls, ProjectCall[model.NotificationRequest]{projectID, req})
	})
	return m.SendNotificationFunc(ctx, projectID, req)
}

// --- Configuration helpers ---

// ServeBundle makes FetchBundle return bundle for every project.
func (m *MockBackend) ServeBundle(bundle model.Bundle) {
	m.FetchBundleFunc = func(context.Context, string) (model.Bundle, error) { return bundle, nil }
}

// FailApprovalWith makes SubmitApproval return err.
func (m *MockBackend) FailApprovalWith(err error) {
	m.SubmitApprovalFunc = func(context.Context, string, model.ApprovalSubmission) error { return err }
}

// FailCommitWith makes CommitTransition return err.
func (m *MockBackend) FailCommitWith(err error) {
	m.CommitTransitionFunc = func(context.Context, string, model.TransitionRequest) (model.CommitResult, error) {
		return model.CommitResult{}, err
	}
}

// RespondToCommitWith makes CommitTransition return preview for the given audience.
func (m *MockBackend) RespondToCommitWith(preview *model.NotificationPreview, audience model.Audience) {
	m.CommitTransitionFunc = func(_ context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
		return model.CommitResult{
			Project:  model.Project{ID: projectID, Status: req.StageID},
			Preview:  preview,
			Audience: audience,
		}, nil
	}
}

// FailQueriesTitled makes CreateQuery fail for items with one of the given titles.
func (m *MockBackend) FailQueriesTitled(err error, titles ...string) {
	failing := make(map[string]bool, len(titles))
	for _, t := range titles {
		failing[t] = true
	}
	m.CreateQueryFunc = func(_ context.Context, _ string, item model.QueryItem) error {
		if failing[item.Title] {
			return err
		}
		return nil
	}
}

// FailTransferOf makes Transfer fail for the named file.
func (m *MockBackend) FailTransferOf(fileName string, err error) {
	m.TransferFunc = func(_ context.Context, _ backend.UploadTarget, meta backend.FileMeta, _ []byte) error {
		if meta.FileName == fileName {
			return err
		}
		return nil
	}
}

// FailNotificationsWith makes SendNotification return err.
func (m *MockBackend) FailNotificationsWith(err error) {
	m.SendNotificationFunc = func(context.Context, string, model.NotificationRequest) (model.NotificationResult, error) {
		return model.NotificationResult{}, err
	}
}

// Reset clears recorded calls.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.FetchBundleCalls = nil
	m.ApprovalCalls = nil
	m.CommitCalls = nil
	m.QueryCalls = nil
	m.UploadTargetCalls = nil
	m.TransferCalls = nil
	m.NotificationCalls = nil
}

var _ backend.Backend = (*MockBackend)(nil)
