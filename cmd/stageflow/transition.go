package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"stageflow/pkg/backend"
	"stageflow/pkg/cache"
	"stageflow/pkg/config"
	"stageflow/pkg/drafting"
	"stageflow/pkg/llm/factory"
	"stageflow/pkg/logx"
	"stageflow/pkg/metrics"
	"stageflow/pkg/model"
	"stageflow/pkg/notify"
	"stageflow/pkg/persistence"
	"stageflow/pkg/resolver"
	"stageflow/pkg/upload"
	"stageflow/pkg/workflow"
)

// Notification actions accepted by -notify.
const (
	notifySend     = "send"
	notifySuppress = "suppress"
	notifySkip     = "skip"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type transitionOptions struct {
	configPath  string
	bundlePath  string
	projectID   string
	stageID     string
	reasonID    string
	notes       string
	fields      stringList
	approvals   stringList
	files       stringList
	queries     stringList
	notify      string
	refine      string
	audio       string
	showMetrics bool
}

func parseTransitionFlags(args []string) (transitionOptions, error) {
	var opts transitionOptions
	fs := flag.NewFlagSet("transition", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Configuration file")
	fs.StringVar(&opts.bundlePath, "bundle", "", "Offline YAML fixture")
	fs.StringVar(&opts.projectID, "project", "", "Project ID")
	fs.StringVar(&opts.stageID, "stage", "", "Target stage ID")
	fs.StringVar(&opts.reasonID, "reason", "", "Change reason ID")
	fs.StringVar(&opts.notes, "notes", "", "Transition notes")
	fs.Var(&opts.fields, "field", "Custom field answer id=value")
	fs.Var(&opts.approvals, "approval", "Approval answer id=value")
	fs.Var(&opts.files, "file", "File to attach")
	fs.Var(&opts.queries, "query", "Follow-up query title")
	fs.StringVar(&opts.notify, "notify", notifySkip, "Notification action: send, suppress or skip")
	fs.StringVar(&opts.refine, "refine", "", "Refinement instruction for the notification draft")
	fs.StringVar(&opts.audio, "audio", "", "Voice note to draft the notification from")
	fs.BoolVar(&opts.showMetrics, "metrics", false, "Print metrics when done")
	fs.Usage = printUsage

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	var missing []string
	if opts.projectID == "" {
		missing = append(missing, "-project")
	}
	if opts.stageID == "" {
		missing = append(missing, "-stage")
	}
	if opts.reasonID == "" {
		missing = append(missing, "-reason")
	}
	if len(missing) > 0 {
		return opts, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	switch opts.notify {
	case notifySend, notifySuppress, notifySkip:
	default:
		return opts, fmt.Errorf("-notify must be send, suppress or skip, got %q", opts.notify)
	}
	return opts, nil
}

// consoleFeedback prints operator notices to stdout.
type consoleFeedback struct{}

func (consoleFeedback) Success(msg string) { fmt.Printf("✅ %s\n", msg) }
func (consoleFeedback) Warning(msg string) { fmt.Printf("⚠️  %s\n", msg) }
func (consoleFeedback) Error(msg string)   { fmt.Printf("❌ %s\n", msg) }

func runTransition(args []string) error {
	opts, err := parseTransitionFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secretsDir, err := config.DefaultSecretsDir()
	if err != nil {
		return err
	}
	if _, err := unlockSecrets(secretsDir); err != nil {
		return err
	}

	be, err := newBackend(cfg, opts.bundlePath)
	if err != nil {
		return err
	}

	projects := cache.New(nil)
	if err := projects.Refresh(ctx, be); err != nil {
		return err
	}
	project, ok := projects.Project(opts.projectID)
	if !ok {
		return fmt.Errorf("project %s not found", opts.projectID)
	}

	deps := workflow.Deps{
		Backend:       be,
		Projects:      projects,
		Bundles:       resolver.NewBundleCache(be, cfg.Cache.BundleTTL, cfg.Backend.ConfigRetryMaxElapsed),
		Feedback:      consoleFeedback{},
		Placeholder:   cfg.Notify.Placeholder,
		MaxUploadSize: cfg.Upload.MaxFileSize,
		NoPreselect:   !cfg.Notify.PreselectRecipients,
	}

	if cfg.Journal.Path != "" {
		j, err := persistence.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Journal = j
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled || opts.showMetrics {
		deps.Recorder = metrics.NewPrometheusRecorder(reg, cfg.Metrics.Namespace)
	}

	if opts.refine != "" || opts.audio != "" {
		drafter, err := newDrafter(cfg)
		if err != nil {
			return err
		}
		deps.Drafter = drafter
	}

	w := workflow.New(deps, project)
	defer func() {
		if err := w.Close(context.Background()); err != nil {
			logx.Warnf("failed to close workflow: %v", err)
		}
	}()

	if err := configure(ctx, w, opts); err != nil {
		return err
	}

	result, err := w.Submit(ctx)
	if err != nil {
		return describeSubmitError(err)
	}

	fmt.Printf("%s is now in stage %s\n", result.Project.Name, result.Project.Status)
	if result.SideEffectErr != nil {
		for _, f := range result.SideEffectErr.Failures {
			fmt.Printf("   query %q: %v\n", f.Item.Title, f.Err)
		}
	}

	if result.Notification != nil {
		if err := resolveNotification(ctx, result.Notification, opts); err != nil {
			return err
		}
	}

	if opts.showMetrics {
		return metrics.WriteText(os.Stdout, reg)
	}
	return nil
}

func newBackend(cfg config.Config, bundlePath string) (backend.Backend, error) {
	if bundlePath != "" {
		fmt.Printf("Running offline against %s\n", bundlePath)
		be, err := loadFixture(bundlePath)
		if err != nil {
			return nil, err
		}
		return be, nil
	}
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is not configured; pass -bundle to run offline")
	}

	var opts []backend.Option
	token, err := config.GetSecret(cfg.Backend.TokenSecret)
	switch {
	case err == nil:
		opts = append(opts, backend.WithToken(token))
	case errors.Is(err, config.ErrSecretNotFound):
		logx.Warnf("%s is not set; calling %s without a token", cfg.Backend.TokenSecret, cfg.Backend.BaseURL)
	default:
		return nil, err
	}
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, opts...), nil
}

func newDrafter(cfg config.Config) (*drafting.Service, error) {
	client, err := factory.New(cfg.Drafting)
	if err != nil {
		return nil, fmt.Errorf("drafting unavailable: %w", err)
	}
	opts := []drafting.Option{
		drafting.WithPlaceholder(cfg.Notify.Placeholder),
		drafting.WithMaxPromptTokens(cfg.Drafting.MaxPromptTokens),
		drafting.WithTemperature(cfg.Drafting.Temperature),
	}
	if t, err := factory.NewTranscriber(cfg.Drafting); err == nil {
		opts = append(opts, drafting.WithTranscriber(t))
	} else {
		logx.Warnf("voice drafting disabled: %v", err)
	}
	return drafting.New(client, opts...), nil
}

func configure(ctx context.Context, w *workflow.Workflow, opts transitionOptions) error {
	if err := w.Open(ctx); err != nil {
		return err
	}
	if err := w.SelectStage(opts.stageID); err != nil {
		return err
	}
	if err := w.SelectReason(opts.reasonID); err != nil {
		return err
	}
	if err := w.SetNotes(opts.notes); err != nil {
		return err
	}

	customTypes := make(map[string]string)
	for _, def := range w.CustomFields() {
		customTypes[def.ID] = string(def.Type)
	}
	for _, raw := range opts.fields {
		resp, err := parseResponse(raw, customTypes)
		if err != nil {
			return err
		}
		if err := w.SetCustomResponse(resp); err != nil {
			return err
		}
	}

	approvalTypes := make(map[string]string)
	for _, rule := range w.ApprovalFields() {
		approvalTypes[rule.ID] = string(rule.Type)
	}
	for _, raw := range opts.approvals {
		resp, err := parseResponse(raw, approvalTypes)
		if err != nil {
			return err
		}
		if err := w.SetApprovalResponse(resp); err != nil {
			return err
		}
	}

	if len(opts.files) > 0 {
		files := make([]upload.LocalFile, 0, len(opts.files))
		for _, p := range opts.files {
			f, err := upload.FileFromPath(p)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		attachments, err := w.UploadFiles(ctx, files)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %d file(s)\n", len(attachments))
	}

	for _, title := range opts.queries {
		w.Queries().Add(model.QueryItem{Title: title})
	}
	return nil
}

// parseResponse turns "id=value" into a field response shaped for the field's type.
// Booleans accept yes/no/true/false; multi-selects are separated by '|'.
func parseResponse(raw string, types map[string]string) (model.FieldResponse, error) {
	id, value, ok := strings.Cut(raw, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return model.FieldResponse{}, fmt.Errorf("field answer %q must look like id=value", raw)
	}
	fieldType, known := types[id]
	if !known {
		return model.FieldResponse{}, fmt.Errorf("field %s is not asked for by this stage and reason", id)
	}

	resp := model.FieldResponse{FieldID: id}
	switch fieldType {
	case string(model.CustomFieldBoolean):
		b, err := parseYesNo(value)
		if err != nil {
			return model.FieldResponse{}, fmt.Errorf("field %s: %w", id, err)
		}
		resp.Bool = &b
	case string(model.CustomFieldMultiSelect):
		for _, opt := range strings.Split(value, "|") {
			if opt = strings.TrimSpace(opt); opt != "" {
				resp.Selected = append(resp.Selected, opt)
			}
		}
	default:
		resp.Value = value
	}
	return resp, nil
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%q is not yes or no", s)
	}
	return b, nil
}

func describeSubmitError(err error) error {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		for _, m := range verr.Messages {
			fmt.Printf("   %s\n", m)
		}
	}
	return err
}

func resolveNotification(ctx context.Context, orch *notify.Orchestrator, opts transitionOptions) error {
	if opts.audio != "" {
		f, err := upload.FileFromPath(opts.audio)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		_, err = orch.Transcribe(ctx, rc, f.Name, f.Type)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	if opts.refine != "" {
		if _, err := orch.Refine(ctx, opts.refine); err != nil {
			return err
		}
	}

	draft := orch.Draft()
	fmt.Printf("\nNotification (%s)\n  Subject: %s\n  Body: %s\n", orch.Audience(), draft.Subject, draft.Body)
	for _, ch := range model.Channels() {
		if orch.Enabled(ch) {
			fmt.Printf("  %s: %d recipient(s)\n", ch, len(orch.Selected(ch)))
		}
	}

	switch opts.notify {
	case notifySend:
		res, err := orch.Send(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Notification sent: %d email, %d push, %d sms\n", res.EmailCount, res.PushCount, res.SMSCount)
	case notifySuppress:
		if _, err := orch.Suppress(ctx); err != nil {
			return err
		}
		fmt.Println("Notification suppressed")
	default:
		if err := orch.Skip(); err != nil {
			return err
		}
		fmt.Println("Notification skipped")
	}
	return nil
}
