// Package engine wires the flagging components into the calls a web layer
// makes: resolve the content, check eligibility, record the flag.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/eligibility"
	"github.com/mikepea/flagd/pkg/flagd/ledger"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
	"github.com/mikepea/flagd/pkg/flagd/workflow"
)

type Config struct {
	Settings *settings.Settings
	Registry *content.Registry
	Resolver content.Resolver
	Store    *store.Store
	Checker  *eligibility.Checker
	Workflow *workflow.Workflow
	Ledger   *ledger.Ledger
	Logger   *slog.Logger
}

type Engine struct {
	settings *settings.Settings
	registry *content.Registry
	resolver content.Resolver
	store    *store.Store
	checker  *eligibility.Checker
	workflow *workflow.Workflow
	ledger   *ledger.Ledger
	logger   *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Settings == nil || cfg.Registry == nil || cfg.Resolver == nil || cfg.Store == nil {
		return nil, errors.New("engine needs settings, a registry, a resolver and a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Checker == nil {
		cfg.Checker = eligibility.NewChecker(cfg.Settings, cfg.Store)
	}
	if cfg.Workflow == nil {
		cfg.Workflow = workflow.New(cfg.Settings, cfg.Store, nil, cfg.Logger)
	}
	if cfg.Ledger == nil {
		l, err := ledger.New(ledger.Config{
			Settings: cfg.Settings,
			Store:    cfg.Store,
			Workflow: cfg.Workflow,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		cfg.Ledger = l
	}
	return &Engine{
		settings: cfg.Settings,
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		store:    cfg.Store,
		checker:  cfg.Checker,
		workflow: cfg.Workflow,
		ledger:   cfg.Ledger,
		logger:   cfg.Logger.With("system", "engine"),
	}, nil
}

// FlagRequest is a flag submission as it arrives from a caller.
type FlagRequest struct {
	User    auth.User
	Content content.Input
	// CreatorField names the item attribute holding its owner. Optional.
	CreatorField string
	Comment      string
	Status       *int
}

// Resolve normalizes in and looks the item up.
func (e *Engine) Resolve(ctx context.Context, in content.Input) (content.Item, error) {
	ref, err := e.registry.ToRef(in)
	if err != nil {
		return content.Item{}, err
	}
	return e.resolver.Resolve(ctx, ref)
}

// Confirm runs the checks made before a flag form is shown. The trust gate is
// not reported here; Flag enforces it.
func (e *Engine) Confirm(ctx context.Context, user auth.User, in content.Input) (content.Ref, error) {
	item, err := e.Resolve(ctx, in)
	if err != nil {
		return content.Ref{}, err
	}
	if err := e.checker.Confirm(ctx, user, item.Ref); err != nil {
		return content.Ref{}, err
	}
	return item.Ref, nil
}

// CanFlag reports whether user may flag the item right now.
func (e *Engine) CanFlag(ctx context.Context, user auth.User, in content.Input) bool {
	item, err := e.Resolve(ctx, in)
	if err != nil {
		return false
	}
	return e.checker.CanFlag(ctx, user, item.Ref)
}

// Flag resolves the item and its creator, enforces every eligibility check
// and records the flag.
func (e *Engine) Flag(ctx context.Context, req FlagRequest) (*models.FlagEvent, error) {
	item, err := e.Resolve(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	creator, err := item.Creator(req.CreatorField)
	if err != nil {
		return nil, err
	}
	if err := e.checker.AssertCanFlag(ctx, req.User, item.Ref); err != nil {
		return nil, err
	}
	return e.ledger.AddFlag(ctx, ledger.AddRequest{
		User:      req.User,
		Ref:       item.Ref,
		CreatorID: creator,
		Comment:   req.Comment,
		Status:    req.Status,
	})
}

// ChangeStatus applies a moderator decision. The item itself need not exist
// any more, only its ledger entry.
func (e *Engine) ChangeStatus(ctx context.Context, actor auth.User, in content.Input, status int) (*models.FlaggedContent, error) {
	ref, err := e.registry.ToRef(in)
	if err != nil {
		return nil, err
	}
	return e.workflow.ChangeStatus(ctx, actor, ref, status)
}

// Ref normalizes in without resolving the item.
func (e *Engine) Ref(in content.Input) (content.Ref, error) {
	return e.registry.ToRef(in)
}

// Ledger exposes the read helpers.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Options returns the resolved options for contentType.
func (e *Engine) Options(contentType string) settings.Options {
	return e.settings.For(contentType)
}
