package workflow

import (
	"errors"
	"fmt"
	"strings"

	"stageflow/pkg/notify"
	"stageflow/pkg/queries"
	"stageflow/pkg/upload"
)

// Sentinel errors.
var (
	ErrSubmitInFlight    = errors.New("a transition is already being committed")
	ErrUploadInFlight    = errors.New("files are still uploading")
	ErrInvalidTransition = errors.New("invalid workflow state transition")
	ErrClosed            = errors.New("workflow is closed")
	ErrUnknownStage      = errors.New("stage is not an available target")
	ErrUnknownReason     = errors.New("reason is not valid for the chosen stage")
)

// Validation kinds.
const (
	KindSelection    = "selection"
	KindCustomFields = "custom_fields"
	KindApproval     = "approval"
)

// ValidationError is a submit rejected before any network call.
type ValidationError struct {
	Kind     string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Kind, strings.Join(e.Messages, "; "))
}

// CommitPhase says which network step of a submit failed.
type CommitPhase string

// Commit phases.
const (
	PhaseApproval CommitPhase = "approval"
	PhaseCommit   CommitPhase = "commit"
)

// CommitError is a failed approval submission or transition commit. The workflow is back
// in CONFIGURING and the cached project is as it was before submit.
type CommitError struct {
	Phase CommitPhase
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// SideEffectError aggregates post-commit side effects that failed. The transition itself
// succeeded.
type SideEffectError struct {
	Attempted int
	Failures  []queries.Failure
}

func (e *SideEffectError) Error() string {
	noun := "side effects"
	if len(e.Failures) == 1 {
		noun = "side effect"
	}
	return fmt.Sprintf("stage updated, but %d %s failed", len(e.Failures), noun)
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *SideEffectError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// UploadError names the file that stopped an upload batch.
type UploadError = upload.Error

// NotificationError is a failed send or suppress; the notification step stays open.
type NotificationError = notify.Error
