package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

// fixture is the YAML document behind -bundle.
type fixture struct {
	Projects     []fixtureProject `yaml:"projects"`
	Bundle       model.Bundle     `yaml:"bundle"`
	Notification *fixturePreview  `yaml:"notification,omitempty"`
}

type fixtureProject struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Client string `yaml:"client,omitempty"`
	Status string `yaml:"status"`
	Due    string `yaml:"due,omitempty"`
}

type fixturePreview struct {
	Audience   model.Audience     `yaml:"audience"`
	Subject    string             `yaml:"subject"`
	Body       string             `yaml:"body"`
	PushTitle  string             `yaml:"push_title,omitempty"`
	PushBody   string             `yaml:"push_body,omitempty"`
	Recipients []fixtureRecipient `yaml:"recipients"`
}

type fixtureRecipient struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    bool   `yaml:"email"`
	Push     bool   `yaml:"push"`
	Mobile   bool   `yaml:"mobile"`
	OptedOut bool   `yaml:"opted_out"`
}

// offlineBackend serves a fixture in memory. Commits update the in-memory project, uploads
// are read and discarded, and notifications are counted but never delivered.
type offlineBackend struct {
	mu       sync.Mutex
	fixture  fixture
	projects []model.Project
	logger   *logx.Logger
}

var _ backend.Backend = (*offlineBackend)(nil)

func loadFixture(filename string) (*offlineBackend, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle fixture: %w", err)
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*offlineBackend, error) {
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse bundle fixture: %w", err)
	}
	if len(fx.Projects) == 0 {
		return nil, errors.New("bundle fixture lists no projects")
	}
	if len(fx.Bundle.Stages) == 0 {
		return nil, errors.New("bundle fixture defines no stages")
	}

	projects := make([]model.Project, 0, len(fx.Projects))
	for _, p := range fx.Projects {
		proj := model.Project{ID: p.ID, Name: p.Name, ClientName: p.Client, Status: p.Status}
		if p.Due != "" {
			due, err := time.Parse(model.DateLayout, p.Due)
			if err != nil {
				return nil, fmt.Errorf("project %s: invalid due date %q", p.ID, p.Due)
			}
			proj.DueDate = &due
		}
		projects = append(projects, proj)
	}

	return &offlineBackend{
		fixture:  fx,
		projects: projects,
		logger:   logx.NewLogger("offline"),
	}, nil
}

func (o *offlineBackend) ListProjects(_ context.Context) ([]model.Project, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Project, len(o.projects))
	copy(out, o.projects)
	return out, nil
}

func (o *offlineBackend) FetchBundle(_ context.Context, projectID string) (model.Bundle, error) {
	if _, ok := o.project(projectID); !ok {
		return model.Bundle{}, fmt.Errorf("project %s not in fixture", projectID)
	}
	b := o.fixture.Bundle
	b.FetchedAt = time.Now()
	return b, nil
}

func (o *offlineBackend) SubmitApproval(_ context.Context, projectID string, sub model.ApprovalSubmission) error {
	o.logger.Info("approval %s recorded for %s (%d responses)", sub.RulesetID, projectID, len(sub.Responses))
	return nil
}

func (o *offlineBackend) CommitTransition(_ context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := -1
	for i := range o.projects {
		if o.projects[i].ID == projectID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.CommitResult{}, fmt.Errorf("project %s not in fixture", projectID)
	}

	before := o.projects[idx]
	o.projects[idx].Status = req.StageID
	o.projects[idx].UpdatedAt = time.Now()
	result := model.CommitResult{Project: o.projects[idx]}
	o.logger.Info("committed %s: %s -> %s (%d attachments, %d fields)",
		projectID, before.Status, req.StageID, len(req.Attachments), len(req.CustomFieldResponses))

	fp := o.fixture.Notification
	if fp == nil {
		return result, nil
	}

	preview := &model.NotificationPreview{
		Audience:  fp.Audience,
		Subject:   fp.Subject,
		Body:      fp.Body,
		PushTitle: fp.PushTitle,
		PushBody:  fp.PushBody,
		DedupeKey: uuid.NewString(),
		Context: model.PreviewContext{
			ProjectName: before.Name,
			ClientName:  before.ClientName,
			OldStage:    o.stageName(before.Status),
			NewStage:    o.stageName(req.StageID),
			DueDate:     before.DueDate,
			Reason:      o.reasonName(req.ReasonID),
		},
	}
	for _, r := range fp.Recipients {
		preview.Recipients = append(preview.Recipients, model.Recipient{
			ID:        r.ID,
			Name:      r.Name,
			HasEmail:  r.Email,
			HasPush:   r.Push,
			HasMobile: r.Mobile,
			OptedOut:  r.OptedOut,
		})
	}
	result.Preview = preview
	result.Audience = preview.Audience
	return result, nil
}

func (o *offlineBackend) CreateQuery(_ context.Context, projectID string, item model.QueryItem) error {
	o.logger.Info("query %q created for %s", item.Title, projectID)
	return nil
}

func (o *offlineBackend) RequestUploadTarget(_ context.Context, projectID string, meta backend.FileMeta) (backend.UploadTarget, error) {
	return backend.UploadTarget{
		UploadURL:  "offline://discard",
		ObjectPath: path.Join("offline", projectID, uuid.NewString(), meta.FileName),
	}, nil
}

func (o *offlineBackend) Transfer(_ context.Context, target backend.UploadTarget, _ backend.FileMeta, body io.Reader) error {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	o.logger.Debug("discarded %d bytes for %s", n, target.ObjectPath)
	return nil
}

func (o *offlineBackend) SendNotification(_ context.Context, projectID string, req model.NotificationRequest) (model.NotificationResult, error) {
	if req.Suppress {
		o.logger.Info("notification %s suppressed for %s", req.DedupeKey, projectID)
		return model.NotificationResult{Suppressed: true}, nil
	}
	res := model.NotificationResult{Sent: true}
	if req.SendEmail {
		res.EmailCount = len(req.EmailRecipientIDs)
	}
	if req.SendPush {
		res.PushCount = len(req.PushRecipientIDs)
	}
	if req.SendSMS {
		res.SMSCount = len(req.SMSRecipientIDs)
	}
	o.logger.Info("notification %s for %s: %d email, %d push, %d sms",
		req.DedupeKey, projectID, res.EmailCount, res.PushCount, res.SMSCount)
	return res, nil
}

func (o *offlineBackend) project(id string) (model.Project, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.projects {
		if p.ID == id {
			return p, true
		}
	}
	return model.Project{}, false
}

func (o *offlineBackend) stageName(id string) string {
	for _, s := range o.fixture.Bundle.Stages {
		if s.ID == id {
			return s.Name
		}
	}
	return id
}

func (o *offlineBackend) reasonName(id string) string {
	for _, r := range o.fixture.Bundle.Reasons {
		if r.ID == id {
			return r.DisplayName()
		}
	}
	return id
}
