package settings

import (
	"fmt"
	"slices"
	"strings"
)

// Option names a resolvable setting.
type Option string

const (
	AllowComments           Option = "allow_comments"
	NeedsTrust              Option = "needs_trust"
	TrustDays               Option = "trust_days"
	LimitPerUserPerObject   Option = "limit_per_user_per_object"
	LimitPerObject          Option = "limit_per_object"
	Statuses                Option = "statuses"
	DefaultStatus           Option = "default_status"
	StatusChoiceForFlaggers Option = "status_choice_for_flaggers"
	SendNotifications       Option = "send_notifications"
	NotifyRecipients        Option = "notify_recipients"
	NotifyFromAddress       Option = "notify_from_address"
	EscalationRules         Option = "escalation_rules"
	AllowedContentTypes     Option = "allowed_content_types"
)

// StatusChoice is one configured status code and its label.
type StatusChoice struct {
	Code  int    `toml:"code" json:"code"`
	Label string `toml:"label" json:"label"`
}

// EscalationRule means: once the count reaches Threshold, notify every
// Every flags, starting at Threshold.
type EscalationRule struct {
	Threshold int `toml:"threshold" json:"threshold"`
	Every     int `toml:"every" json:"every"`
}

// Options is the fully resolved policy for one content type.
type Options struct {
	AllowComments           bool             `toml:"allow_comments"`
	NeedsTrust              bool             `toml:"needs_trust"`
	TrustDays               int              `toml:"trust_days"`
	LimitPerUserPerObject   int              `toml:"limit_per_user_per_object"`
	LimitPerObject          int              `toml:"limit_per_object"`
	Statuses                []StatusChoice   `toml:"statuses"`
	DefaultStatus           int              `toml:"default_status"`
	StatusChoiceForFlaggers bool             `toml:"status_choice_for_flaggers"`
	SendNotifications       bool             `toml:"send_notifications"`
	NotifyRecipients        []string         `toml:"notify_recipients"`
	NotifyFromAddress       string           `toml:"notify_from_address"`
	EscalationRules         []EscalationRule `toml:"escalation_rules"`
}

// HasStatus reports whether code is one of the configured statuses.
func (o Options) HasStatus(code int) bool {
	return slices.ContainsFunc(o.Statuses, func(s StatusChoice) bool { return s.Code == code })
}

// StatusLabel returns the label of code, or an empty string.
func (o Options) StatusLabel(code int) string {
	for _, s := range o.Statuses {
		if s.Code == code {
			return s.Label
		}
	}
	return ""
}

// ShouldSend reports whether notifications are enabled and have somewhere to go.
func (o Options) ShouldSend() bool {
	return o.SendNotifications && len(o.NotifyRecipients) > 0
}

// Override replaces any subset of the global options for one content type.
// Nil fields fall through to the global value.
type Override struct {
	AllowComments           *bool            `toml:"allow_comments"`
	NeedsTrust              *bool            `toml:"needs_trust"`
	TrustDays               *int             `toml:"trust_days"`
	LimitPerUserPerObject   *int             `toml:"limit_per_user_per_object"`
	LimitPerObject          *int             `toml:"limit_per_object"`
	Statuses                []StatusChoice   `toml:"statuses"`
	DefaultStatus           *int             `toml:"default_status"`
	StatusChoiceForFlaggers *bool            `toml:"status_choice_for_flaggers"`
	SendNotifications       *bool            `toml:"send_notifications"`
	NotifyRecipients        []string         `toml:"notify_recipients"`
	NotifyFromAddress       *string          `toml:"notify_from_address"`
	EscalationRules         []EscalationRule `toml:"escalation_rules"`
}

// Settings is the immutable flagging configuration handed to the engine.
type Settings struct {
	global    Options
	allowed   []string
	overrides map[string]Override
}

// Defaults mirrors the stock policy: comments allowed, no limits, no trust
// gate, one notification per flag when notifications are switched on.
func Defaults() Options {
	return Options{
		AllowComments: true,
		TrustDays:     3,
		Statuses: []StatusChoice{
			{Code: 1, Label: "flagged"},
			{Code: 2, Label: "flag rejected by moderator"},
			{Code: 3, Label: "creator notified"},
			{Code: 4, Label: "content removed by creator"},
			{Code: 5, Label: "content removed by moderator"},
		},
		DefaultStatus:   1,
		EscalationRules: []EscalationRule{{Threshold: 1, Every: 1}},
	}
}

// New validates and freezes a configuration. allowed may be nil, meaning
// every content type can be flagged. Content type names are matched
// case-insensitively.
func New(global Options, allowed []string, overrides map[string]Override) (*Settings, error) {
	s := &Settings{
		global:    cloneOptions(global),
		overrides: make(map[string]Override, len(overrides)),
	}
	if allowed != nil {
		s.allowed = make([]string, len(allowed))
		for i, ct := range allowed {
			s.allowed[i] = strings.ToLower(ct)
		}
	}
	for ct, ov := range overrides {
		key := strings.ToLower(ct)
		if _, dup := s.overrides[key]; dup {
			return nil, fmt.Errorf("settings: overrides for %q given twice", key)
		}
		s.overrides[key] = ov
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Global returns the global options.
func (s *Settings) Global() Options {
	return cloneOptions(s.global)
}

// AllowedContentTypes returns the allowlist, or nil when unrestricted.
func (s *Settings) AllowedContentTypes() []string {
	return slices.Clone(s.allowed)
}

// IsAllowed reports whether contentType passes the allowlist.
func (s *Settings) IsAllowed(contentType string) bool {
	return s.allowed == nil || slices.Contains(s.allowed, contentType)
}

// For resolves every option for contentType: the override value when one
// exists, otherwise the global default.
func (s *Settings) For(contentType string) Options {
	o := cloneOptions(s.global)
	ov, ok := s.overrides[contentType]
	if !ok {
		return o
	}
	if ov.AllowComments != nil {
		o.AllowComments = *ov.AllowComments
	}
	if ov.NeedsTrust != nil {
		o.NeedsTrust = *ov.NeedsTrust
	}
	if ov.TrustDays != nil {
		o.TrustDays = *ov.TrustDays
	}
	if ov.LimitPerUserPerObject != nil {
		o.LimitPerUserPerObject = *ov.LimitPerUserPerObject
	}
	if ov.LimitPerObject != nil {
		o.LimitPerObject = *ov.LimitPerObject
	}
	if ov.Statuses != nil {
		o.Statuses = slices.Clone(ov.Statuses)
	}
	if ov.DefaultStatus != nil {
		o.DefaultStatus = *ov.DefaultStatus
	}
	if ov.StatusChoiceForFlaggers != nil {
		o.StatusChoiceForFlaggers = *ov.StatusChoiceForFlaggers
	}
	if ov.SendNotifications != nil {
		o.SendNotifications = *ov.SendNotifications
	}
	if ov.NotifyRecipients != nil {
		o.NotifyRecipients = slices.Clone(ov.NotifyRecipients)
	}
	if ov.NotifyFromAddress != nil {
		o.NotifyFromAddress = *ov.NotifyFromAddress
	}
	if ov.EscalationRules != nil {
		o.EscalationRules = slices.Clone(ov.EscalationRules)
	}
	return o
}

// Resolve returns a single option for contentType. The allowlist is global
// only and ignores overrides. An unknown option name is a programming error
// and panics.
func (s *Settings) Resolve(contentType string, name Option) any {
	if name == AllowedContentTypes {
		return s.AllowedContentTypes()
	}
	o := s.For(contentType)
	switch name {
	case AllowComments:
		return o.AllowComments
	case NeedsTrust:
		return o.NeedsTrust
	case TrustDays:
		return o.TrustDays
	case LimitPerUserPerObject:
		return o.LimitPerUserPerObject
	case LimitPerObject:
		return o.LimitPerObject
	case Statuses:
		return o.Statuses
	case DefaultStatus:
		return o.DefaultStatus
	case StatusChoiceForFlaggers:
		return o.StatusChoiceForFlaggers
	case SendNotifications:
		return o.SendNotifications
	case NotifyRecipients:
		return o.NotifyRecipients
	case NotifyFromAddress:
		return o.NotifyFromAddress
	case EscalationRules:
		return o.EscalationRules
	}
	panic(fmt.Sprintf("settings: unknown option %q", name))
}

func (s *Settings) validate() error {
	if err := validateOptions("global", s.global); err != nil {
		return err
	}
	for ct := range s.overrides {
		if err := validateOptions(ct, s.For(ct)); err != nil {
			return err
		}
	}
	return nil
}

func validateOptions(scope string, o Options) error {
	if len(o.Statuses) == 0 {
		return fmt.Errorf("settings %s: at least one status is required", scope)
	}
	seen := make(map[int]bool, len(o.Statuses))
	for _, st := range o.Statuses {
		if st.Code <= 0 {
			return fmt.Errorf("settings %s: status code %d must be positive", scope, st.Code)
		}
		if seen[st.Code] {
			return fmt.Errorf("settings %s: duplicate status code %d", scope, st.Code)
		}
		seen[st.Code] = true
	}
	if !o.HasStatus(o.DefaultStatus) {
		return fmt.Errorf("settings %s: default status %d is not a configured status", scope, o.DefaultStatus)
	}
	if o.TrustDays < 0 || o.LimitPerObject < 0 || o.LimitPerUserPerObject < 0 {
		return fmt.Errorf("settings %s: trust days and limits must not be negative", scope)
	}
	prev := 0
	for _, r := range o.EscalationRules {
		if r.Threshold <= prev {
			return fmt.Errorf("settings %s: escalation thresholds must be positive and ascending", scope)
		}
		if r.Every <= 0 {
			return fmt.Errorf("settings %s: escalation frequency must be positive (threshold %d)", scope, r.Threshold)
		}
		prev = r.Threshold
	}
	return nil
}

func cloneOptions(o Options) Options {
	o.Statuses = slices.Clone(o.Statuses)
	o.NotifyRecipients = slices.Clone(o.NotifyRecipients)
	o.EscalationRules = slices.Clone(o.EscalationRules)
	return o
}
