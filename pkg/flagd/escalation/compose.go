package escalation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/notify"
	"github.com/mikepea/flagd/pkg/flagd/settings"
)

const DefaultSubject = `{% autoescape off %}[flag] {{ content_type }} #{{ object_id }} has been flagged{% endautoescape %}`

const DefaultBody = `{% autoescape off %}{{ content_type }} #{{ object_id }} has been flagged by {{ flagger }}.

Total flags: {{ count }}
Current status: {{ status }}
{% if comment %}Comment: {{ comment }}
{% endif %}{% if creator %}The flagged object was created by {{ creator }}
{% endif %}Flagged at: {{ when|date:"2006-01-02 15:04 MST" }}
{% endautoescape %}`

// Trigger describes the flag that caused a notification.
type Trigger struct {
	Ref         content.Ref
	Count       uint
	FlaggerName string
	CreatorName string
	Comment     string
	StatusLabel string
	When        time.Time
}

// Composer renders notifications from pongo2 templates.
type Composer struct {
	subject *pongo2.Template
	body    *pongo2.Template
}

// NewComposer compiles the subject and body templates. Empty strings select
// DefaultSubject and DefaultBody.
func NewComposer(subject, body string) (*Composer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if body == "" {
		body = DefaultBody
	}
	st, err := pongo2.FromString(subject)
	if err != nil {
		return nil, fmt.Errorf("subject template: %w", err)
	}
	bt, err := pongo2.FromString(body)
	if err != nil {
		return nil, fmt.Errorf("body template: %w", err)
	}
	return &Composer{subject: st, body: bt}, nil
}

// Compose builds the message for t, addressed per opts.
func (c *Composer) Compose(opts settings.Options, t Trigger) (notify.Message, error) {
	ctx := pongo2.Context{
		"content_type": t.Ref.Type,
		"object_id":    t.Ref.ObjectID,
		"count":        t.Count,
		"flagger":      t.FlaggerName,
		"creator":      t.CreatorName,
		"comment":      t.Comment,
		"status":       t.StatusLabel,
		"when":         t.When.UTC(),
	}
	subject, err := c.subject.Execute(ctx)
	if err != nil {
		return notify.Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	body, err := c.body.Execute(ctx)
	if err != nil {
		return notify.Message{}, fmt.Errorf("rendering body: %w", err)
	}

	details := []notify.Detail{
		{Key: "Content", Value: t.Ref.String()},
		{Key: "Total flags", Value: strconv.FormatUint(uint64(t.Count), 10)},
		{Key: "Flagged by", Value: t.FlaggerName},
		{Key: "Status", Value: t.StatusLabel},
	}
	if t.CreatorName != "" {
		details = append(details, notify.Detail{Key: "Created by", Value: t.CreatorName})
	}
	if t.Comment != "" {
		details = append(details, notify.Detail{Key: "Comment", Value: t.Comment})
	}

	return notify.Message{
		To:      append([]string(nil), opts.NotifyRecipients...),
		From:    opts.NotifyFromAddress,
		Subject: subject,
		Body:    body,
		Details: details,
	}, nil
}
