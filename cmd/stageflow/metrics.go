package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"stageflow/pkg/config"
	"stageflow/pkg/metrics"
	"stageflow/pkg/persistence"
	"stageflow/pkg/workflow"
)

func runMetrics(args []string) error {
	var (
		configPath string
		limit      int
	)
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Configuration file")
	fs.IntVar(&limit, "limit", 500, "Number of recent sessions to replay")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyLogging()
	if cfg.Journal.Path == "" {
		return errors.New("metrics are rebuilt from the journal, but journal.path is not configured")
	}

	j, err := persistence.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg, cfg.Metrics.Namespace)
	n, err := replayJournal(context.Background(), j, rec, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "replayed %d sessions from %s\n", n, cfg.Journal.Path)
	return metrics.WriteText(os.Stdout, reg)
}

// replayJournal feeds the latest sessions through rec and returns how many were replayed.
// Commit durations are the time between entering COMMITTING and leaving it.
func replayJournal(ctx context.Context, j *persistence.Journal, rec metrics.Recorder, limit int) (int, error) {
	sessions, err := j.RecentSessions(ctx, limit)
	if err != nil {
		return 0, err
	}

	for _, s := range sessions {
		transitions, err := j.ListTransitions(ctx, s.SessionID)
		if err != nil {
			return 0, err
		}
		for i, tr := range transitions {
			rec.ObserveTransition(tr.FromState, tr.ToState)

			switch {
			case tr.FromState == string(workflow.StateApprovalPending) && tr.ToState == string(workflow.StateFailed):
				rec.ObserveCommit(metrics.CommitApprovalFailed, 0)
			case tr.FromState == string(workflow.StateCommitting) && i > 0:
				outcome := metrics.CommitSuccess
				if tr.ToState == string(workflow.StateFailed) {
					outcome = metrics.CommitRolledBack
				}
				rec.ObserveCommit(outcome, tr.At.Sub(transitions[i-1].At))
			}
		}

		failures, err := j.ListSideEffectFailures(ctx, s.SessionID)
		if err != nil {
			return 0, err
		}
		if len(failures) > 0 {
			rec.ObserveSideEffects(0, len(failures))
		}

		notifications, err := j.ListNotifications(ctx, s.SessionID)
		if err != nil {
			return 0, err
		}
		for _, n := range notifications {
			rec.ObserveNotification(n.Outcome, n.Audience)
		}
	}
	return len(sessions), nil
}
