// Package notify runs the post-commit notification step: per-channel recipient choice,
// first-name personalization of the draft, and the send, suppress or skip exit.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/metrics"
	"stageflow/pkg/model"
)

// DefaultPlaceholder is the first-names token backend drafts embed.
const DefaultPlaceholder = "{recipient_first_names}"

// Outcome is how the notification step was resolved.
type Outcome string

// Outcomes. OutcomePending means the step is still open.
const (
	OutcomePending    Outcome = ""
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Drafter rewrites draft text. *drafting.Service implements it.
type Drafter interface {
	Refine(ctx context.Context, instruction string, current model.Draft, pctx model.PreviewContext) (model.Draft, error)
	DraftFromAudio(ctx context.Context, audio io.Reader, fileName, mimeType string, pctx model.PreviewContext) (model.Draft, error)
}

// Resolution is passed to the resolve hook once the step is terminal.
type Resolution struct {
	DedupeKey string
	Audience  model.Audience
	Outcome   Outcome
	Result    model.NotificationResult
}

type channelState struct {
	available bool
	enabled   bool
	eligible  []model.Recipient
	selected  map[string]bool
}

// Orchestrator owns one NotificationPreview until it is sent, suppressed or skipped.
//
//nolint:govet // fieldalignment: grouped by concern
type Orchestrator struct {
	projectID string
	preview   model.NotificationPreview
	sender    backend.NotificationSender
	drafter   Drafter
	recorder  metrics.Recorder
	onResolve func(Resolution)
	logger    *logx.Logger

	placeholder string
	preselect   bool

	mu            sync.Mutex
	draft         model.Draft
	channels      map[model.Channel]*channelState
	resolvedNames string
	nameAt        nameSlots
	outcome       Outcome
	result        model.NotificationResult
	inFlight      bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDrafter enables Refine and Transcribe.
func WithDrafter(d Drafter) Option {
	return func(o *Orchestrator) { o.drafter = d }
}

// WithPlaceholder overrides DefaultPlaceholder.
func WithPlaceholder(p string) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.placeholder = p
		}
	}
}

// WithPreselect controls whether eligible recipients start selected.
func WithPreselect(on bool) Option {
	return func(o *Orchestrator) { o.preselect = on }
}

// WithRecorder records the resolution outcome.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// OnResolve registers a hook called once, after a successful send or suppress or a skip.
func OnResolve(fn func(Resolution)) Option {
	return func(o *Orchestrator) { o.onResolve = fn }
}

// New takes ownership of preview for projectID. Eligibility is computed once here.
func New(projectID string, preview model.NotificationPreview, sender backend.NotificationSender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		projectID:   projectID,
		preview:     clonePreview(preview),
		sender:      sender,
		recorder:    metrics.Nop(),
		logger:      logx.NewLogger("notify"),
		placeholder: DefaultPlaceholder,
		preselect:   true,
		draft: model.Draft{
			Subject:   preview.Subject,
			Body:      preview.Body,
			PushTitle: preview.PushTitle,
			PushBody:  preview.PushBody,
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	o.channels = make(map[model.Channel]*channelState, 3)
	for _, ch := range model.Channels() {
		st := &channelState{selected: make(map[string]bool)}
		for _, r := range o.preview.Recipients {
			if r.EligibleFor(ch) {
				st.eligible = append(st.eligible, r)
			}
		}
		switch ch {
		case model.ChannelEmail:
			st.available = o.preview.Subject != "" || o.preview.Body != ""
			st.enabled = st.available
		case model.ChannelPush:
			st.available = o.preview.Audience == model.AudienceStaff
			st.enabled = st.available
		case model.ChannelSMS:
			st.available = len(st.eligible) > 0
		}
		if st.enabled && o.preselect {
			for _, r := range st.eligible {
				st.selected[r.ID] = true
			}
		}
		o.channels[ch] = st
	}

	o.personalizeLocked()
	o.logger.Debug("notification %s opened for %s audience with %d recipients",
		o.preview.DedupeKey, o.preview.Audience, len(o.preview.Recipients))
	return o
}

func clonePreview(p model.NotificationPreview) model.NotificationPreview {
	p.Recipients = append([]model.Recipient(nil), p.Recipients...)
	return p
}

// Preview returns the preview as received from the backend.
func (o *Orchestrator) Preview() model.NotificationPreview {
	return clonePreview(o.preview)
}

// DedupeKey correlates this notification with its transition.
func (o *Orchestrator) DedupeKey() string {
	return o.preview.DedupeKey
}

// Audience is the audience decided by the backend.
func (o *Orchestrator) Audience() model.Audience {
	return o.preview.Audience
}

// Draft returns the current, possibly edited and personalized, text.
func (o *Orchestrator) Draft() model.Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}

// SetDraft replaces the text with operator edits.
func (o *Orchestrator) SetDraft(d model.Draft) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcome != OutcomePending {
		return ErrResolved
	}
	o.nameAt.subject = reanchor(o.draft.Subject, d.Subject, o.nameAt.subject, o.resolvedNames)
	o.nameAt.body = reanchor(o.draft.Body, d.Body, o.nameAt.body, o.resolvedNames)
	if o.nameAt.empty() {
		o.resolvedNames = ""
	}
	o.draft = d
	return nil
}

// Available reports whether ch can be used for this preview at all.
func (o *Orchestrator) Available(ch model.Channel) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.channels[ch]
	return ok && st.available
}

// Enabled reports whether ch is switched on.
func (o *Orchestrator) Enabled(ch model.Channel) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.channels[ch]
	return ok && st.available && st.enabled
}

// Eligible lists recipients that can receive on ch, in preview order.
func (o *Orchestrator) Eligible(ch model.Channel) []model.Recipient {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.channels[ch]
	if !ok {
		return nil
	}
	return append([]model.Recipient(nil), st.eligible...)
}

// Selected lists the selected recipient ids on ch, in preview order.
func (o *Orchestrator) Selected(ch model.Channel) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selectedLocked(ch)
}

func (o *Orchestrator) selectedLocked(ch model.Channel) []string {
	st, ok := o.channels[ch]
	if !ok {
		return nil
	}
	ids := []string{}
	for _, r := range st.eligible {
		if st.selected[r.ID] {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// SetChannelEnabled switches ch on or off. Enabling SMS for the first time preselects its
// eligible recipients when preselection is on.
func (o *Orchestrator) SetChannelEnabled(ch model.Channel, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, err := o.channelLocked(ch)
	if err != nil {
		return err
	}
	if on && !st.enabled && ch == model.ChannelSMS && o.preselect && len(st.selected) == 0 {
		for _, r := range st.eligible {
			st.selected[r.ID] = true
		}
	}
	st.enabled = on
	return nil
}

// SetSelected replaces the recipient selection on ch. Changing email recipients
// re-resolves the first names in the draft.
func (o *Orchestrator) SetSelected(ch model.Channel, ids []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, err := o.channelLocked(ch)
	if err != nil {
		return err
	}
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !isEligible(st, id) {
			return fmt.Errorf("%w: %s on %s", ErrIneligibleRecipient, id, ch)
		}
		next[id] = true
	}
	st.selected = next
	if ch == model.ChannelEmail {
		o.personalizeLocked()
	}
	return nil
}

// Toggle selects or deselects one recipient on ch.
func (o *Orchestrator) Toggle(ch model.Channel, id string, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, err := o.channelLocked(ch)
	if err != nil {
		return err
	}
	if !isEligible(st, id) {
		return fmt.Errorf("%w: %s on %s", ErrIneligibleRecipient, id, ch)
	}
	if on {
		st.selected[id] = true
	} else {
		delete(st.selected, id)
	}
	if ch == model.ChannelEmail {
		o.personalizeLocked()
	}
	return nil
}

func (o *Orchestrator) channelLocked(ch model.Channel) (*channelState, error) {
	if o.outcome != OutcomePending {
		return nil, ErrResolved
	}
	st, ok := o.channels[ch]
	if !ok || !st.available {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnavailable, ch)
	}
	return st, nil
}

func isEligible(st *channelState, id string) bool {
	for _, r := range st.eligible {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasEnabledChannel reports whether Send would deliver to anyone.
func (o *Orchestrator) HasEnabledChannel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasEnabledChannelLocked()
}

func (o *Orchestrator) hasEnabledChannelLocked() bool {
	for _, ch := range model.Channels() {
		if o.deliversLocked(ch) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) deliversLocked(ch model.Channel) bool {
	st := o.channels[ch]
	return st.available && st.enabled && len(st.selected) > 0
}

// FirstNames resolves the names the placeholder stands for: selected email recipients,
// or every email-eligible recipient when none is selected.
func (o *Orchestrator) FirstNames() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.firstNamesLocked()
}

func (o *Orchestrator) firstNamesLocked() string {
	st := o.channels[model.ChannelEmail]
	pool := make([]model.Recipient, 0, len(st.eligible))
	for _, r := range st.eligible {
		if st.selected[r.ID] {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		pool = st.eligible
	}
	names := make([]string, 0, len(pool))
	for _, r := range pool {
		if n := FirstName(r.Name); n != "" {
			names = append(names, n)
		}
	}
	return JoinNames(names)
}

// personalizeLocked swaps the names at the tracked offsets for the current first names.
// Before any names are resolved it fills in every placeholder instead. Text the operator
// typed is never rewritten.
func (o *Orchestrator) personalizeLocked() {
	names := o.firstNamesLocked()
	if names == "" || names == o.resolvedNames {
		return
	}
	width, subjectAt, bodyAt := len(o.resolvedNames), o.nameAt.subject, o.nameAt.body
	if o.resolvedNames == "" {
		width = len(o.placeholder)
		subjectAt, bodyAt = indexAll(o.draft.Subject, o.placeholder), indexAll(o.draft.Body, o.placeholder)
		if len(subjectAt)+len(bodyAt) == 0 {
			return
		}
	}
	o.draft.Subject, o.nameAt.subject = splice(o.draft.Subject, subjectAt, width, names)
	o.draft.Body, o.nameAt.body = splice(o.draft.Body, bodyAt, width, names)
	o.resolvedNames = names
}

// templateLocked returns the draft with resolved names turned back into the placeholder.
func (o *Orchestrator) templateLocked() model.Draft {
	d := o.draft
	if o.resolvedNames != "" {
		d.Subject, _ = splice(d.Subject, o.nameAt.subject, len(o.resolvedNames), o.placeholder)
		d.Body, _ = splice(d.Body, o.nameAt.body, len(o.resolvedNames), o.placeholder)
	}
	return d
}

// Refine asks the drafter to rewrite the draft and personalizes the result.
func (o *Orchestrator) Refine(ctx context.Context, instruction string) (model.Draft, error) {
	return o.redraft(func(current model.Draft) (model.Draft, error) {
		return o.drafter.Refine(ctx, instruction, current, o.preview.Context)
	})
}

// Transcribe drafts subject, body and push text from a voice note and personalizes the
// result. Push text is kept only for the staff audience.
func (o *Orchestrator) Transcribe(ctx context.Context, audio io.Reader, fileName, mimeType string) (model.Draft, error) {
	return o.redraft(func(_ model.Draft) (model.Draft, error) {
		return o.drafter.DraftFromAudio(ctx, audio, fileName, mimeType, o.preview.Context)
	})
}

func (o *Orchestrator) redraft(fn func(model.Draft) (model.Draft, error)) (model.Draft, error) {
	if o.drafter == nil {
		return model.Draft{}, ErrNoDrafter
	}
	o.mu.Lock()
	if o.outcome != OutcomePending {
		o.mu.Unlock()
		return model.Draft{}, ErrResolved
	}
	current := o.templateLocked()
	o.mu.Unlock()

	next, err := fn(current)
	if err != nil {
		return model.Draft{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcome != OutcomePending {
		return model.Draft{}, ErrResolved
	}
	if o.preview.Audience != model.AudienceStaff {
		next.PushTitle, next.PushBody = "", ""
	} else {
		if next.PushTitle == "" {
			next.PushTitle = o.draft.PushTitle
		}
		if next.PushBody == "" {
			next.PushBody = o.draft.PushBody
		}
	}
	o.draft = next
	o.resolvedNames = ""
	o.nameAt = nameSlots{}
	o.personalizeLocked()
	return o.draft, nil
}

// Request builds the payload Send would post.
func (o *Orchestrator) Request() model.NotificationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requestLocked(false)
}

func (o *Orchestrator) requestLocked(suppress bool) model.NotificationRequest {
	req := model.NotificationRequest{
		DedupeKey:         o.preview.DedupeKey,
		Audience:          o.preview.Audience,
		Subject:           o.draft.Subject,
		Body:              o.draft.Body,
		SendEmail:         o.deliversLocked(model.ChannelEmail),
		SendPush:          o.deliversLocked(model.ChannelPush),
		SendSMS:           o.deliversLocked(model.ChannelSMS),
		EmailRecipientIDs: []string{},
		PushRecipientIDs:  []string{},
		SMSRecipientIDs:   []string{},
		Suppress:          suppress,
	}
	if o.preview.Audience == model.AudienceStaff {
		req.PushTitle, req.PushBody = o.draft.PushTitle, o.draft.PushBody
	}
	if req.SendEmail {
		req.EmailRecipientIDs = o.selectedLocked(model.ChannelEmail)
	}
	if req.SendPush {
		req.PushRecipientIDs = o.selectedLocked(model.ChannelPush)
	}
	if req.SendSMS {
		req.SMSRecipientIDs = o.selectedLocked(model.ChannelSMS)
	}
	return req
}

// Send delivers the notification on every enabled channel.
func (o *Orchestrator) Send(ctx context.Context) (model.NotificationResult, error) {
	return o.post(ctx, false)
}

// Suppress records that the operator reviewed the notification and chose not to send it.
// It is allowed whatever the recipient selection.
func (o *Orchestrator) Suppress(ctx context.Context) (model.NotificationResult, error) {
	return o.post(ctx, true)
}

func (o *Orchestrator) post(ctx context.Context, suppress bool) (model.NotificationResult, error) {
	action, outcome := "send", OutcomeSent
	if suppress {
		action, outcome = "suppress", OutcomeSuppressed
	}

	o.mu.Lock()
	if o.outcome != OutcomePending {
		o.mu.Unlock()
		return model.NotificationResult{}, ErrResolved
	}
	if o.inFlight {
		o.mu.Unlock()
		return model.NotificationResult{}, ErrBusy
	}
	if !suppress && !o.hasEnabledChannelLocked() {
		o.mu.Unlock()
		return model.NotificationResult{}, ErrNoEnabledChannel
	}
	req := o.requestLocked(suppress)
	o.inFlight = true
	o.mu.Unlock()

	result, err := o.sender.SendNotification(ctx, o.projectID, req)

	o.mu.Lock()
	o.inFlight = false
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("notification %s for %s failed: %v", action, req.DedupeKey, err)
		o.recorder.ObserveNotification(metrics.NotificationFailed, string(req.Audience))
		return model.NotificationResult{}, &Error{Action: action, Err: err}
	}
	o.outcome = outcome
	o.result = result
	o.mu.Unlock()

	o.logger.Info("notification %s resolved as %s (email=%d push=%d sms=%d)",
		req.DedupeKey, outcome, result.EmailCount, result.PushCount, result.SMSCount)
	o.resolved(outcome, result)
	return result, nil
}

// Skip closes the step without calling the backend, so no suppression record exists.
func (o *Orchestrator) Skip() error {
	o.mu.Lock()
	if o.outcome != OutcomePending {
		o.mu.Unlock()
		return ErrResolved
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	o.outcome = OutcomeSkipped
	o.mu.Unlock()

	o.logger.Info("notification %s skipped", o.preview.DedupeKey)
	o.resolved(OutcomeSkipped, model.NotificationResult{})
	return nil
}

// Abandon closes the step because its workflow went away. Nothing is posted and the
// resolve hook is not called; later actions return ErrResolved.
func (o *Orchestrator) Abandon() error {
	o.mu.Lock()
	if o.outcome != OutcomePending {
		o.mu.Unlock()
		return ErrResolved
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	o.outcome = OutcomeAbandoned
	o.mu.Unlock()

	o.logger.Info("notification %s abandoned", o.preview.DedupeKey)
	return nil
}

func (o *Orchestrator) resolved(outcome Outcome, result model.NotificationResult) {
	o.recorder.ObserveNotification(string(outcome), string(o.preview.Audience))
	if o.onResolve != nil {
		o.onResolve(Resolution{
			DedupeKey: o.preview.DedupeKey,
			Audience:  o.preview.Audience,
			Outcome:   outcome,
			Result:    result,
		})
	}
}

// Outcome returns the resolution, or OutcomePending.
func (o *Orchestrator) Outcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome
}

// Result is the backend's answer to a successful send or suppress.
func (o *Orchestrator) Result() model.NotificationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}
