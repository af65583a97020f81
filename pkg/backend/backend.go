// Package backend declares the request/response contracts the transition workflow consumes
// and an HTTP/JSON client that implements them.
package backend

import (
	"context"
	"io"

	"stageflow/pkg/model"
)

// ProjectLister lists the projects shown in the host application's project list.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// ConfigSource fetches the stage/reason/approval configuration bundle for a project.
type ConfigSource interface {
	FetchBundle(ctx context.Context, projectID string) (model.Bundle, error)
}

// ApprovalSubmitter records approval checklist answers.
type ApprovalSubmitter interface {
	SubmitApproval(ctx context.Context, projectID string, sub model.ApprovalSubmission) error
}

// TransitionCommitter performs the stage transition.
type TransitionCommitter interface {
	CommitTransition(ctx context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error)
}

// QueryCreator persists one ad-hoc follow-up query.
type QueryCreator interface {
	CreateQuery(ctx context.Context, projectID string, item model.QueryItem) error
}

// FileMeta describes a file before it is uploaded.
type FileMeta struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}

// UploadTarget is a one-time destination for a file's bytes.
type UploadTarget struct {
	UploadURL  string `json:"uploadUrl"`
	ObjectPath string `json:"objectPath"`
}

// Storage moves file bytes into durable storage.
type Storage interface {
	RequestUploadTarget(ctx context.Context, projectID string, meta FileMeta) (UploadTarget, error)
	Transfer(ctx context.Context, target UploadTarget, meta FileMeta, body io.Reader) error
}

// NotificationSender sends or suppresses a post-commit notification.
type NotificationSender interface {
	SendNotification(ctx context.Context, projectID string, req model.NotificationRequest) (model.NotificationResult, error)
}

// Backend is everything the workflow needs from the case-management API.
type Backend interface {
	ProjectLister
	ConfigSource
	ApprovalSubmitter
	TransitionCommitter
	QueryCreator
	Storage
	NotificationSender
}
