package settings

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mikepea/flagd/pkg/flagd/content"
)

// File is the on-disk policy document.
type File struct {
	AllowedContentTypes []string            `toml:"allowed_content_types"`
	Global              Options             `toml:"global"`
	Overrides           map[string]Override `toml:"overrides"`
	ContentTypes        []content.TypeSpec  `toml:"content_types"`
}

// Load reads a TOML policy file. Global keys not present fall back to Defaults.
func Load(path string) (*Settings, *content.Registry, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	return fromFile(f, md)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (*Settings, *content.Registry, error) {
	var f File
	md, err := toml.Decode(doc, &f)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing settings: %w", err)
	}
	return fromFile(f, md)
}

// withDefaults fills every global key the document left out. Keys that are
// present, lists included, are taken as written.
func withDefaults(g Options, md toml.MetaData) Options {
	def := Defaults()
	unset := func(key Option) bool { return !md.IsDefined("global", string(key)) }
	if unset(AllowComments) {
		g.AllowComments = def.AllowComments
	}
	if unset(NeedsTrust) {
		g.NeedsTrust = def.NeedsTrust
	}
	if unset(TrustDays) {
		g.TrustDays = def.TrustDays
	}
	if unset(LimitPerUserPerObject) {
		g.LimitPerUserPerObject = def.LimitPerUserPerObject
	}
	if unset(LimitPerObject) {
		g.LimitPerObject = def.LimitPerObject
	}
	if unset(Statuses) {
		g.Statuses = def.Statuses
	}
	if unset(DefaultStatus) {
		g.DefaultStatus = def.DefaultStatus
	}
	if unset(StatusChoiceForFlaggers) {
		g.StatusChoiceForFlaggers = def.StatusChoiceForFlaggers
	}
	if unset(SendNotifications) {
		g.SendNotifications = def.SendNotifications
	}
	if unset(NotifyRecipients) {
		g.NotifyRecipients = def.NotifyRecipients
	}
	if unset(NotifyFromAddress) {
		g.NotifyFromAddress = def.NotifyFromAddress
	}
	if unset(EscalationRules) {
		g.EscalationRules = def.EscalationRules
	}
	return g
}

func fromFile(f File, md toml.MetaData) (*Settings, *content.Registry, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, nil, fmt.Errorf("unknown settings keys: %s", strings.Join(keys, ", "))
	}

	reg, err := content.NewRegistry(f.ContentTypes...)
	if err != nil {
		return nil, nil, err
	}
	registered := func(ct string) bool {
		_, ok := reg.Lookup(ct)
		return ok
	}

	var allowed []string
	if md.IsDefined("allowed_content_types") {
		allowed = make([]string, 0, len(f.AllowedContentTypes))
		for _, ct := range f.AllowedContentTypes {
			ct = strings.ToLower(strings.TrimSpace(ct))
			if !registered(ct) {
				return nil, nil, fmt.Errorf("allowed_content_types: %q is not a registered content type", ct)
			}
			allowed = append(allowed, ct)
		}
	}

	overrides := make(map[string]Override, len(f.Overrides))
	for name, ov := range f.Overrides {
		ct := strings.ToLower(strings.TrimSpace(name))
		if !registered(ct) {
			return nil, nil, fmt.Errorf("overrides: %q is not a registered content type", name)
		}
		if _, dup := overrides[ct]; dup {
			return nil, nil, fmt.Errorf("overrides: %q is configured twice", ct)
		}
		overrides[ct] = ov
	}

	s, err := New(withDefaults(f.Global, md), allowed, overrides)
	if err != nil {
		return nil, nil, err
	}
	return s, reg, nil
}
