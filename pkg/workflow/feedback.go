package workflow

import "stageflow/pkg/logx"

// Feedback shows operator-facing notices. The workflow calls Success when a commit
// lands, Warning when side effects partly fail, and Error when a submit fails.
type Feedback interface {
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// LogFeedback writes notices to a component logger.
type LogFeedback struct {
	logger *logx.Logger
}

// NewLogFeedback creates feedback that logs under the "feedback" component.
func NewLogFeedback() *LogFeedback {
	return &LogFeedback{logger: logx.NewLogger("feedback")}
}

// Success logs at info level.
func (f *LogFeedback) Success(msg string) { f.logger.Info("%s", msg) }

// Warning logs at warn level.
func (f *LogFeedback) Warning(msg string) { f.logger.Warn("%s", msg) }

// Error logs at error level.
func (f *LogFeedback) Error(msg string) { f.logger.Error("%s", msg) }
