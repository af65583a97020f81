package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg, "stageflow")

	r.ObserveTransition("Configuring", "Committing")
	r.ObserveCommit(CommitSuccess, 120*time.Millisecond)
	r.ObserveCommit(CommitRolledBack, 80*time.Millisecond)
	r.ObserveSideEffects(2, 1)
	r.ObserveUpload(true, 2048)
	r.ObserveUpload(false, 0)
	r.ObserveNotification(NotificationSuppressed, "client")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()

	assert.Contains(t, out, `stageflow_workflow_transitions_total{from="Configuring",to="Committing"} 1`)
	assert.Contains(t, out, `stageflow_commits_total{outcome="rolled_back"} 1`)
	assert.Contains(t, out, `stageflow_commit_duration_seconds_count{outcome="success"} 1`)
	assert.Contains(t, out, `stageflow_side_effects_total{result="success"} 2`)
	assert.Contains(t, out, `stageflow_side_effects_total{result="failure"} 1`)
	assert.Contains(t, out, `stageflow_uploads_total{result="failure"} 1`)
	assert.Contains(t, out, `stageflow_upload_bytes_total 2048`)
	assert.Contains(t, out, `stageflow_notifications_total{audience="client",outcome="suppressed"} 1`)
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg, "stageflow")
	r.ObserveValidationFailure("approval")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), `stageflow_validation_failures_total{kind="approval"} 1`)
}

func TestNopRecorder(t *testing.T) {
	r := Nop()
	r.ObserveCommit(CommitSuccess, time.Second)
	r.ObserveNotification(NotificationSent, "staff")
}
