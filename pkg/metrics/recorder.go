// Package metrics records stage-transition workflow outcomes.
package metrics

import "time"

// Commit outcomes.
const (
	CommitSuccess        = "success"
	CommitRolledBack     = "rolled_back"
	CommitApprovalFailed = "approval_failed"
)

// Notification outcomes.
const (
	NotificationSent       = "sent"
	NotificationSuppressed = "suppressed"
	NotificationSkipped    = "skipped"
	NotificationFailed     = "failed"
)

// Recorder is implemented by metrics backends.
type Recorder interface {
	// ObserveTransition counts a workflow state change.
	ObserveTransition(from, to string)

	// ObserveValidationFailure counts a submit rejected locally. kind is selection,
	// custom_fields or approval.
	ObserveValidationFailure(kind string)

	// ObserveCommit records the outcome and duration of the commit phase.
	ObserveCommit(outcome string, duration time.Duration)

	// ObserveSideEffects records how many post-commit side effects succeeded and failed.
	ObserveSideEffects(succeeded, failed int)

	// ObserveUpload records one file upload.
	ObserveUpload(success bool, bytes int64)

	// ObserveNotification records how the notification step was resolved.
	ObserveNotification(outcome string, audience string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// Nop returns a recorder for when metrics are disabled.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveTransition does nothing.
func (n *NoopRecorder) ObserveTransition(_, _ string) {}

// ObserveValidationFailure does nothing.
func (n *NoopRecorder) ObserveValidationFailure(_ string) {}

// ObserveCommit does nothing.
func (n *NoopRecorder) ObserveCommit(_ string, _ time.Duration) {}

// ObserveSideEffects does nothing.
func (n *NoopRecorder) ObserveSideEffects(_, _ int) {}

// ObserveUpload does nothing.
func (n *NoopRecorder) ObserveUpload(_ bool, _ int64) {}

// ObserveNotification does nothing.
func (n *NoopRecorder) ObserveNotification(_, _ string) {}
