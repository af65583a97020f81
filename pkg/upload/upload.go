// Package upload moves locally selected files into durable storage, one file at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/metrics"
	"stageflow/pkg/model"
)

// LocalFile is a file the operator selected for upload.
type LocalFile struct {
	Name string
	Size int64
	Type string
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a file on disk. The content type is guessed from the extension.
func FileFromPath(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LocalFile{}, fmt.Errorf("%s is a directory", path)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return LocalFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Type: contentType,
		Open: func() (io.ReadCloser, error) { return os.Open(path) }, //nolint:gosec // operator-selected path
	}, nil
}

// Error reports the file that stopped an upload batch.
type Error struct {
	FileName string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.FileName, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrTooLarge is wrapped by Error when a file exceeds the configured maximum size.
var ErrTooLarge = errors.New("file exceeds maximum upload size")

// Pipeline uploads files for one project and accumulates attachment references.
// It never retries. Upload calls must not overlap; the accessors and Reset are safe to
// call while one runs.
type Pipeline struct {
	storage   backend.Storage
	projectID string
	maxSize   int64
	recorder  metrics.Recorder
	logger    *logx.Logger

	mu          sync.Mutex
	selected    []LocalFile
	attachments []model.Attachment
}

// NewPipeline creates a pipeline. A maxSize of zero disables the size check.
func NewPipeline(storage backend.Storage, projectID string, maxSize int64, recorder metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Pipeline{
		storage:   storage,
		projectID: projectID,
		maxSize:   maxSize,
		recorder:  recorder,
		logger:    logx.NewLogger("upload"),
	}
}

// Selected returns the files currently in the working set.
func (p *Pipeline) Selected() []LocalFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LocalFile(nil), p.selected...)
}

// Attachments returns every attachment uploaded so far.
func (p *Pipeline) Attachments() []model.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Attachment(nil), p.attachments...)
}

// Upload selects files and transfers them in order. On the first failure the failing
// file and every file after it are dropped from the working set, and the error names the
// failing file. Attachments from earlier files and earlier batches are kept.
func (p *Pipeline) Upload(ctx context.Context, files []LocalFile) ([]model.Attachment, error) {
	p.mu.Lock()
	start := len(p.selected)
	p.selected = append(p.selected, files...)
	p.mu.Unlock()

	var uploaded []model.Attachment
	for i, f := range files {
		att, err := p.uploadOne(ctx, f)
		if err != nil {
			p.recorder.ObserveUpload(false, 0)
			dropped := len(files) - i
			p.mu.Lock()
			if len(p.selected) >= start+i {
				p.selected = p.selected[:start+i]
			}
			p.mu.Unlock()
			p.logger.Warn("upload of %s failed, dropped %d file(s) from selection: %v", f.Name, dropped, err)
			return uploaded, &Error{FileName: f.Name, Err: err}
		}
		p.recorder.ObserveUpload(true, att.FileSize)
		p.mu.Lock()
		p.attachments = append(p.attachments, att)
		p.mu.Unlock()
		uploaded = append(uploaded, att)
		p.logger.Info("uploaded %s (%d bytes) to %s", att.FileName, att.FileSize, att.ObjectPath)
	}
	return uploaded, nil
}

func (p *Pipeline) uploadOne(ctx context.Context, f LocalFile) (model.Attachment, error) {
	if p.maxSize > 0 && f.Size > p.maxSize {
		return model.Attachment{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, f.Size, p.maxSize)
	}
	if f.Open == nil {
		return model.Attachment{}, errors.New("file has no content")
	}

	meta := backend.FileMeta{FileName: f.Name, FileSize: f.Size, FileType: f.Type}
	target, err := p.storage.RequestUploadTarget(ctx, p.projectID, meta)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to request upload target: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	if err := p.storage.Transfer(ctx, target, meta, rc); err != nil {
		return model.Attachment{}, err
	}
	return model.Attachment{
		FileName:   f.Name,
		FileSize:   f.Size,
		FileType:   f.Type,
		ObjectPath: target.ObjectPath,
	}, nil
}

// Reset clears the working set and the attachment list.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = nil
	p.attachments = nil
}
