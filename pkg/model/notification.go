package model

import "time"

// Audience identifies who a post-commit notification is addressed to.
type Audience string

// Audiences.
const (
	AudienceStaff  Audience = "staff"
	AudienceClient Audience = "client"
)

// Channel is a delivery channel for a notification.
type Channel string

// Channels.
const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// Channels lists every channel in presentation order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelSMS}
}

// Recipient is a person a preview may be delivered to.
type Recipient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HasEmail  bool   `json:"hasEmail"`
	HasPush   bool   `json:"hasPush"`
	HasMobile bool   `json:"hasMobile"`
	OptedOut  bool   `json:"optedOut"`
}

// EligibleFor reports whether the recipient can receive on the channel.
func (r Recipient) EligibleFor(ch Channel) bool {
	if r.OptedOut {
		return false
	}
	switch ch {
	case ChannelEmail:
		return r.HasEmail
	case ChannelPush:
		return r.HasPush
	case ChannelSMS:
		return r.HasMobile
	default:
		return false
	}
}

// PreviewContext is descriptive metadata about the transition that produced a preview.
type PreviewContext struct {
	ProjectName string     `json:"projectName"`
	ClientName  string     `json:"clientName,omitempty"`
	OldStage    string     `json:"oldStage"`
	NewStage    string     `json:"newStage"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// NotificationPreview is the backend-drafted notification owed after a commit.
type NotificationPreview struct {
	Audience   Audience       `json:"audience"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	PushTitle  string         `json:"pushTitle,omitempty"`
	PushBody   string         `json:"pushBody,omitempty"`
	Recipients []Recipient    `json:"recipients"`
	DedupeKey  string         `json:"dedupeKey"`
	Context    PreviewContext `json:"context"`
}

// CommitResult is the response to a transition commit.
type CommitResult struct {
	Project  Project              `json:"updatedProject"`
	Preview  *NotificationPreview `json:"notificationPreview,omitempty"`
	Audience Audience             `json:"audience,omitempty"`
}

// NotificationRequest is the send-or-suppress payload.
type NotificationRequest struct {
	DedupeKey         string   `json:"dedupeKey"`
	Audience          Audience `json:"audience"`
	Subject           string   `json:"subject"`
	Body              string   `json:"body"`
	PushTitle         string   `json:"pushTitle,omitempty"`
	PushBody          string   `json:"pushBody,omitempty"`
	SendEmail         bool     `json:"sendEmail"`
	SendPush          bool     `json:"sendPush"`
	SendSMS           bool     `json:"sendSms"`
	EmailRecipientIDs []string `json:"emailRecipientIds"`
	PushRecipientIDs  []string `json:"pushRecipientIds"`
	SMSRecipientIDs   []string `json:"smsRecipientIds"`
	Suppress          bool     `json:"suppress"`
}

// NotificationResult reports what the backend delivered.
type NotificationResult struct {
	Sent       bool `json:"sent"`
	Suppressed bool `json:"suppressed"`
	EmailCount int  `json:"emailCount"`
	PushCount  int  `json:"pushCount"`
	SMSCount   int  `json:"smsCount"`
}

// Draft is subject/body text produced by a drafting collaborator.
type Draft struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	PushTitle string `json:"pushTitle,omitempty"`
	PushBody  string `json:"pushBody,omitempty"`
}
