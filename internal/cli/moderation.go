package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage the admin set out of band",
}

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the blacklist out of band",
}

// listKind selects which set of the moderation record a command edits.
type listKind struct {
	title string
	get   func(*store.Record) []string
	set   func(*store.Record, []string)
	// keepOne refuses removals that would empty the set.
	keepOne bool
}

var (
	adminList = listKind{
		title:   "👑 Admins",
		get:     func(r *store.Record) []string { return r.Admins },
		set:     func(r *store.Record, ids []string) { r.Admins = ids },
		keepOne: true,
	}
	blacklistList = listKind{
		title: "🚫 Blacklist",
		get:   func(r *store.Record) []string { return r.Blacklist },
		set:   func(r *store.Record, ids []string) { r.Blacklist = ids },
	}
)

func init() {
	for _, reg := range []struct {
		parent *cobra.Command
		kind   listKind
		noun   string
	}{
		{adminsCmd, adminList, "admins"},
		{blacklistCmd, blacklistList, "blacklist"},
	} {
		kind := reg.kind
		reg.parent.AddCommand(
			&cobra.Command{
				Use:   "list",
				Short: "List " + reg.noun,
				Args:  cobra.NoArgs,
				RunE: func(cmd *cobra.Command, args []string) error {
					return withRuntime(func(rt *runtime) error {
						return listIDs(cmd.Context(), cmd.OutOrStdout(), rt, kind)
					})
				},
			},
			&cobra.Command{
				Use:   "add <id>...",
				Short: "Add user ids to " + reg.noun,
				Args:  cobra.MinimumNArgs(1),
				RunE: func(cmd *cobra.Command, args []string) error {
					return withRuntime(func(rt *runtime) error {
						return addIDs(cmd.Context(), cmd.OutOrStdout(), rt, kind, args)
					})
				},
			},
			&cobra.Command{
				Use:   "remove <id>...",
				Short: "Remove user ids from " + reg.noun,
				Args:  cobra.MinimumNArgs(1),
				RunE: func(cmd *cobra.Command, args []string) error {
					return withRuntime(func(rt *runtime) error {
						return removeIDs(cmd.Context(), cmd.OutOrStdout(), rt, kind, args)
					})
				},
			},
		)
	}
}

func withRuntime(fn func(rt *runtime) error) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func listIDs(ctx context.Context, w io.Writer, rt *runtime, kind listKind) error {
	rec, err := rt.service.Snapshot(ctxOrBackground(ctx))
	if err != nil {
		return err
	}
	ids := kind.get(rec)
	fmt.Fprintf(w, "%s (%d)\n", kind.title, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

func addIDs(ctx context.Context, w io.Writer, rt *runtime, kind listKind, args []string) error {
	ids := mention.Extract(mention.FromIDs(args...))
	var added []string
	err := rt.service.Update(ctxOrBackground(ctx), func(rec *store.Record) (bool, error) {
		current := kind.get(rec)
		added = lo.Filter(ids, func(id string, _ int) bool { return !lo.Contains(current, id) })
		kind.set(rec, append(current, added...))
		return len(added) > 0, nil
	})
	if err != nil {
		return err
	}
	printChange(w, "Added", added, lo.Without(ids, added...))
	return nil
}

func removeIDs(ctx context.Context, w io.Writer, rt *runtime, kind listKind, args []string) error {
	ids := mention.Extract(mention.FromIDs(args...))
	var removed []string
	err := rt.service.Update(ctxOrBackground(ctx), func(rec *store.Record) (bool, error) {
		current := kind.get(rec)
		removed = lo.Filter(ids, func(id string, _ int) bool { return lo.Contains(current, id) })
		remaining := lo.Without(current, removed...)
		if kind.keepOne && len(current) > 0 && len(remaining) == 0 {
			return false, fmt.Errorf("refusing to remove every admin; add another admin first")
		}
		kind.set(rec, remaining)
		return len(removed) > 0, nil
	})
	if err != nil {
		return err
	}
	printChange(w, "Removed", removed, lo.Without(ids, removed...))
	return nil
}

func printChange(w io.Writer, verb string, changed, unchanged []string) {
	if len(changed) > 0 {
		fmt.Fprintf(w, "✓ %s: %s\n", verb, strings.Join(changed, ", "))
	}
	if len(unchanged) > 0 {
		fmt.Fprintf(w, "· Unchanged: %s\n", strings.Join(unchanged, ", "))
	}
	if len(changed) == 0 && len(unchanged) == 0 {
		fmt.Fprintln(w, "No changes.")
	}
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
