// Package manage implements the admin and blacklist commands.
package manage

import (
	"slices"

	"github.com/KafClaw/groupguard/internal/policy"
	"github.com/KafClaw/groupguard/internal/store"
)

// Text prefixes that select each command.
const (
	PrefixAddAdmin        = "/addadmin"
	PrefixRemoveAdmin     = "/deladmin"
	PrefixListAdmins      = "/listadmin"
	PrefixAddBlacklist    = "/ban"
	PrefixRemoveBlacklist = "/unban"
	PrefixListBlacklist   = "/listban"
)

// Outcome classifies how a command ended.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeNoChange      Outcome = "no_change"
	OutcomeBootstrap     Outcome = "bootstrap"
	OutcomeDenied        Outcome = "denied"
	OutcomeMissingTarget Outcome = "missing_target"
	OutcomeListed        Outcome = "listed"
)

// Invocation is the caller side of a command.
type Invocation struct {
	Requester string
	// Targets are the extracted mention ids, already deduplicated.
	Targets []string
	TraceID string
}

// Result describes what a handler did to the record.
type Result struct {
	Action   policy.Action
	Outcome  Outcome
	Reason   string
	Added    []string
	Skipped  []string
	Removed  []string
	NotFound []string
	Listed   []string
	// KeptRequester is set when a removal would have emptied the admin set
	// and the requester was re-inserted.
	KeptRequester bool
}

// ShouldPersist reports whether the record must be written back. Every
// successful privileged invocation saves exactly once; denied and
// missing-target paths never save.
func (r Result) ShouldPersist() bool {
	switch r.Outcome {
	case OutcomeApplied, OutcomeNoChange, OutcomeBootstrap:
		return true
	}
	return false
}

// Handle runs action against rec in memory.
func Handle(rec *store.Record, eng policy.Engine, action policy.Action, inv Invocation) Result {
	switch action {
	case policy.ActionAddAdmin:
		return AddAdmin(rec, eng, inv)
	case policy.ActionRemoveAdmin:
		return RemoveAdmin(rec, eng, inv)
	case policy.ActionListAdmins:
		return ListAdmins(rec)
	case policy.ActionAddBlacklist:
		return AddBlacklist(rec, eng, inv)
	case policy.ActionRemoveBlacklist:
		return RemoveBlacklist(rec, eng, inv)
	case policy.ActionListBlacklist:
		return ListBlacklist(rec)
	}
	return Result{Action: action, Outcome: OutcomeDenied, Reason: "unknown_action"}
}

// AddAdmin adds the mentioned users, or the requester when nobody is mentioned.
func AddAdmin(rec *store.Record, eng policy.Engine, inv Invocation) Result {
	res, ok := authorize(rec, eng, policy.ActionAddAdmin, inv)
	if !ok {
		return res
	}
	targets := inv.Targets
	if len(targets) == 0 {
		targets = []string{inv.Requester}
	}
	rec.Admins, res.Added, res.Skipped = union(rec.Admins, targets)
	res.Outcome = appliedOr(res.Added)
	return res
}

// RemoveAdmin removes the mentioned admins. The admin set is never left
// empty: the requester is re-inserted if the removal would empty it.
func RemoveAdmin(rec *store.Record, eng policy.Engine, inv Invocation) Result {
	res, ok := authorize(rec, eng, policy.ActionRemoveAdmin, inv)
	if !ok {
		return res
	}
	if len(inv.Targets) == 0 {
		res.Outcome = OutcomeMissingTarget
		return res
	}
	rec.Admins, res.Removed, res.NotFound = subtract(rec.Admins, inv.Targets)
	if len(rec.Admins) == 0 {
		rec.Admins = append(rec.Admins, inv.Requester)
		res.KeptRequester = true
	}
	res.Outcome = appliedOr(res.Removed)
	return res
}

// ListAdmins enumerates the admin set.
func ListAdmins(rec *store.Record) Result {
	return Result{Action: policy.ActionListAdmins, Outcome: OutcomeListed, Listed: slices.Clone(rec.Admins)}
}

// AddBlacklist blacklists the mentioned users.
func AddBlacklist(rec *store.Record, eng policy.Engine, inv Invocation) Result {
	res, ok := authorize(rec, eng, policy.ActionAddBlacklist, inv)
	if !ok {
		return res
	}
	if len(inv.Targets) == 0 {
		res.Outcome = OutcomeMissingTarget
		return res
	}
	rec.Blacklist, res.Added, res.Skipped = union(rec.Blacklist, inv.Targets)
	res.Outcome = appliedOr(res.Added)
	return res
}

// RemoveBlacklist lifts the blacklist entry of the mentioned users.
func RemoveBlacklist(rec *store.Record, eng policy.Engine, inv Invocation) Result {
	res, ok := authorize(rec, eng, policy.ActionRemoveBlacklist, inv)
	if !ok {
		return res
	}
	if len(inv.Targets) == 0 {
		res.Outcome = OutcomeMissingTarget
		return res
	}
	rec.Blacklist, res.Removed, res.NotFound = subtract(rec.Blacklist, inv.Targets)
	res.Outcome = appliedOr(res.Removed)
	return res
}

// ListBlacklist enumerates the blacklist.
func ListBlacklist(rec *store.Record) Result {
	return Result{Action: policy.ActionListBlacklist, Outcome: OutcomeListed, Listed: slices.Clone(rec.Blacklist)}
}

func authorize(rec *store.Record, eng policy.Engine, action policy.Action, inv Invocation) (Result, bool) {
	d := eng.Evaluate(policy.Context{
		Requester: inv.Requester,
		Action:    action,
		Admins:    rec.Admins,
		TraceID:   inv.TraceID,
	})
	res := Result{Action: action, Reason: d.Reason}
	switch {
	case d.Bootstrap:
		rec.Admins = []string{inv.Requester}
		res.Outcome = OutcomeBootstrap
		res.Added = []string{inv.Requester}
		return res, false
	case !d.Allow:
		res.Outcome = OutcomeDenied
		return res, false
	}
	return res, true
}

func union(set, ids []string) (out, added, skipped []string) {
	out = set
	for _, id := range ids {
		if slices.Contains(out, id) {
			skipped = append(skipped, id)
			continue
		}
		out = append(out, id)
		added = append(added, id)
	}
	return out, added, skipped
}

func subtract(set, ids []string) (out, removed, notFound []string) {
	out = slices.Clone(set)
	for _, id := range ids {
		i := slices.Index(out, id)
		if i < 0 {
			notFound = append(notFound, id)
			continue
		}
		out = slices.Delete(out, i, i+1)
		removed = append(removed, id)
	}
	return out, removed, notFound
}

func appliedOr(changed []string) Outcome {
	if len(changed) == 0 {
		return OutcomeNoChange
	}
	return OutcomeApplied
}
