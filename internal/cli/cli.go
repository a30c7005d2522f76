// Package cli is the minimal operator surface over the lifecycle
// engine. The interactive TUI lives elsewhere; this dispatcher only
// turns arguments into engine calls and prints what comes back.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/memorybank/keyctl/pkg/keygen"
	"github.com/memorybank/keyctl/services/identity"
	"github.com/memorybank/keyctl/services/key"
)

const usage = `usage: keyctl <command> [flags]

commands:
  list    [-all]                         list keys (newest first)
  get     <id>                           show one key
  create  [-label L] [-env live|test] [-rate N] [-expires DAYS]
          [-scopes a,b] [-email E] [-username U] [-project P]
  revoke  <id>                           revoke a key
  rotate  <id> [-expires DAYS]           revoke and replace a key
  health                                 check backend connectivity
`

func Run(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	switch args[0] {
	case "list":
		return runList(ctx, svc, args[1:], out)
	case "get":
		return runGet(ctx, svc, args[1:], out)
	case "create":
		return runCreate(ctx, svc, args[1:], out)
	case "revoke":
		return runRevoke(ctx, svc, args[1:], out)
	case "rotate":
		return runRotate(ctx, svc, args[1:], out)
	case "health":
		return runHealth(ctx, svc, out)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runList(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	all := fs.Bool("all", false, "include revoked keys")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keys, err := svc.List(ctx, *all)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tLABEL\tSTATUS\tRATE\tCREATED\tID")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s...\t%s\t%s\t%d\t%s\t%s\n",
			k.Prefix, labelOrDash(k.Label), k.Status, k.RateLimit,
			k.CreatedAt.Format(time.RFC3339), k.ID)
	}
	return tw.Flush()
}

func runGet(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("get expects exactly one key id")
	}

	rec, err := svc.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("key %s not found", args[0])
	}

	printRecord(out, rec)
	return nil
}

func runCreate(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	label := fs.String("label", "", "human-readable label")
	env := fs.String("env", "live", "environment: live or test")
	rate := fs.Int("rate", key.DefaultRateLimit, "rate limit, requests per minute")
	expires := fs.Int("expires", 0, "days until expiry, 0 for never")
	scopes := fs.String("scopes", "", "comma-separated scopes")
	email := fs.String("email", "", "owner email (store backend)")
	username := fs.String("username", "", "owner username (store backend)")
	project := fs.String("project", "", "project name (store backend)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := key.CreateParams{
		Environment:   keygen.Environment(*env),
		RateLimit:     *rate,
		ExpiresInDays: *expires,
	}
	if *label != "" {
		params.Label = label
	}
	if *scopes != "" {
		params.Scopes = strings.Split(*scopes, ",")
	}

	if svc.Backend().RequiresOwnerRefs() {
		resolver, ok := svc.Backend().(identity.Resolver)
		if !ok {
			return fmt.Errorf("backend %s cannot resolve key ownership", svc.Backend().Name())
		}
		userID, err := resolver.FindOrCreateUser(ctx, *username, *email)
		if err != nil {
			return err
		}
		projectID, err := resolver.FindOrCreateProject(ctx, *project, userID)
		if err != nil {
			return err
		}
		params.UserID = userID
		params.ProjectID = projectID
	}

	rec, err := svc.Create(ctx, params)
	if err != nil {
		return err
	}

	printNewKey(out, rec)
	return nil
}

func runRevoke(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("revoke expects exactly one key id")
	}

	applied, err := svc.Revoke(ctx, args[0])
	if err != nil {
		return err
	}
	if !applied {
		fmt.Fprintf(out, "key %s not found or already revoked\n", args[0])
		return nil
	}
	fmt.Fprintf(out, "key %s revoked\n", args[0])
	return nil
}

func runRotate(ctx context.Context, svc *key.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rotate", flag.ContinueOnError)
	expires := fs.Int("expires", 0, "days until the replacement expires, 0 for never")
	if len(args) == 0 {
		return fmt.Errorf("rotate expects a key id")
	}
	id := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	rec, err := svc.Rotate(ctx, id, key.RotateParams{ExpiresInDays: *expires})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "rotated: old key revoked, replacement %s...\n", rec.Prefix)
	printNewKey(out, rec)
	return nil
}

func runHealth(ctx context.Context, svc *key.Service, out io.Writer) error {
	if svc.Health(ctx) {
		fmt.Fprintf(out, "%s backend (%s): healthy\n", svc.Backend().Name(), svc.Backend().Info())
		return nil
	}
	return fmt.Errorf("%s backend (%s): unreachable", svc.Backend().Name(), svc.Backend().Info())
}

func printRecord(out io.Writer, rec *key.Record) {
	fmt.Fprintf(out, "id:         %s\n", rec.ID)
	fmt.Fprintf(out, "prefix:     %s...\n", rec.Prefix)
	fmt.Fprintf(out, "label:      %s\n", labelOrDash(rec.Label))
	fmt.Fprintf(out, "status:     %s\n", rec.Status)
	fmt.Fprintf(out, "scopes:     %s\n", strings.Join(rec.Scopes, ","))
	fmt.Fprintf(out, "rate limit: %d/min\n", rec.RateLimit)
	fmt.Fprintf(out, "created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "expires:    %s\n", timeOrDash(rec.ExpiresAt))
	fmt.Fprintf(out, "revoked:    %s\n", timeOrDash(rec.RevokedAt))
}

// printNewKey is the single place the plaintext ever surfaces.
func printNewKey(out io.Writer, rec *key.Record) {
	printRecord(out, rec)
	fmt.Fprintf(out, "\nkey: %s\n", rec.Key)
	fmt.Fprintln(out, "Save this key now -- it will not be shown again.")
}

func labelOrDash(label *string) string {
	if label == nil || *label == "" {
		return "-"
	}
	return *label
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
