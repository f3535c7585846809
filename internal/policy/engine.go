// Package policy decides who may run moderation commands.
package policy

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Action names a moderation operation.
type Action string

const (
	ActionAddAdmin        Action = "add_admin"
	ActionRemoveAdmin     Action = "remove_admin"
	ActionListAdmins      Action = "list_admins"
	ActionAddBlacklist    Action = "add_blacklist"
	ActionRemoveBlacklist Action = "remove_blacklist"
	ActionListBlacklist   Action = "list_blacklist"
)

// Privileged reports whether the action mutates moderation state.
func (a Action) Privileged() bool {
	switch a {
	case ActionListAdmins, ActionListBlacklist:
		return false
	}
	return true
}

// Bootstrappable reports whether the action may initialize an empty admin set.
func (a Action) Bootstrappable() bool {
	return a == ActionAddAdmin || a == ActionRemoveAdmin
}

// Context holds information about a pending moderation command.
type Context struct {
	Requester string
	Action    Action
	Admins    []string
	TraceID   string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow bool
	// Bootstrap asks the caller to make the requester the sole admin and
	// consume the current invocation.
	Bootstrap bool
	Reason    string
	Ts        time.Time
	TraceID   string
}

// Engine evaluates whether a command should proceed.
type Engine interface {
	Evaluate(ctx Context) Decision
}

// FirstUseBootstrap lets the first caller of an admin command become the
// administrator while no admins exist. Anyone who reaches the bot first can
// claim the group; use Provisioned where that is unacceptable.
type FirstUseBootstrap struct{}

// NewFirstUseBootstrap creates the zero-configuration policy.
func NewFirstUseBootstrap() *FirstUseBootstrap {
	return &FirstUseBootstrap{}
}

// Evaluate applies first-use bootstrap, then admin membership.
func (e *FirstUseBootstrap) Evaluate(ctx Context) Decision {
	d := newDecision(ctx)
	if !ctx.Action.Privileged() {
		d.Allow = true
		d.Reason = "unprivileged_action"
		return d
	}
	if len(ctx.Admins) == 0 && ctx.Action.Bootstrappable() {
		d.Bootstrap = true
		d.Reason = "bootstrap_first_use"
		return d
	}
	return checkAdmin(ctx, d)
}

// Provisioned never bootstraps: admins come from configuration or the CLI.
type Provisioned struct{}

// NewProvisioned creates the strict policy.
func NewProvisioned() *Provisioned {
	return &Provisioned{}
}

// Evaluate allows privileged actions for listed admins only.
func (e *Provisioned) Evaluate(ctx Context) Decision {
	d := newDecision(ctx)
	if !ctx.Action.Privileged() {
		d.Allow = true
		d.Reason = "unprivileged_action"
		return d
	}
	return checkAdmin(ctx, d)
}

// ByMode returns the engine for a configured mode name. Unknown or empty
// modes fall back to first-use bootstrap.
func ByMode(mode string) Engine {
	if mode == ModeProvisioned {
		return NewProvisioned()
	}
	return NewFirstUseBootstrap()
}

const (
	ModeFirstUse    = "first-use"
	ModeProvisioned = "provisioned"
)

func newDecision(ctx Context) Decision {
	return Decision{Ts: time.Now(), TraceID: ctx.TraceID}
}

func checkAdmin(ctx Context, d Decision) Decision {
	if ctx.Requester != "" && lo.Contains(ctx.Admins, ctx.Requester) {
		d.Allow = true
		d.Reason = "admin_authorized"
		return d
	}
	d.Reason = fmt.Sprintf("requester_not_admin: %s", ctx.Requester)
	return d
}
