// Command storefrontctl runs administrative analytics tasks against the
// configured backends, outside the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/api/app"
	"storefront/api/config"
	"storefront/api/imagerelay"
	"storefront/api/instrument"
	"storefront/api/logging"
	"storefront/api/tracking"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "storefrontctl - storefront analytics administration\n\n")
	fmt.Fprintf(w, "Usage: storefrontctl <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  purge -yes                       delete all sessions and events\n")
	fmt.Fprintf(w, "  reconcile <session-id>           recompute a session summary from the event log\n")
	fmt.Fprintf(w, "  fetch-image <url>                print an image as a data URI\n")
	fmt.Fprintf(w, "  pageview -session ID -path P     report a page view through the tracking API\n")
	fmt.Fprintf(w, "\nConfiguration is read from the environment and .env, as for the API server.\n")
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	logging.Setup(cfg.LogLevel, "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "purge":
		return runPurge(ctx, cfg, rest, stdout, stderr)
	case "reconcile":
		return runReconcile(ctx, cfg, rest, stdout, stderr)
	case "fetch-image":
		return runFetchImage(ctx, rest, stdout, stderr)
	case "pageview":
		return runPageView(ctx, cfg, rest, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return 2
	}
}

// sharedBackend rejects commands that would act on a private in-memory store
// instead of the data held by a running server.
func sharedBackend(cfg *config.Config, cmd, endpoint string, stderr io.Writer) bool {
	if cfg.StoreBackend != config.BackendMemory {
		return true
	}
	fmt.Fprintf(stderr, "%s needs STORE_BACKEND=mongo or postgres; the memory backend lives inside the API process, use %s on the server instead\n",
		cmd, endpoint)
	return false
}

func runPurge(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	yes := fs.Bool("yes", false, "confirm deletion of all analytics data")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*yes {
		fmt.Fprintln(stderr, "refusing to purge without -yes")
		return 2
	}
	if !sharedBackend(cfg, "purge", "DELETE /api/analytics", stderr) {
		return 2
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize services")
		return 1
	}
	defer a.Close()

	res, err := a.Purger.PurgeAll(ctx)
	if err != nil {
		var perr *tracking.PurgeError
		if errors.As(err, &perr) {
			fmt.Fprintf(stderr, "purge stopped: %d sessions and %d events deleted before failure: %v\n",
				res.SessionsDeleted, res.PageViewsDeleted, perr.Err)
		} else {
			fmt.Fprintf(stderr, "purge failed: %v\n", err)
		}
		return 1
	}
	fmt.Fprintf(stdout, "deleted %d sessions and %d events\n", res.SessionsDeleted, res.PageViewsDeleted)
	return 0
}

func runReconcile(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: storefrontctl reconcile <session-id>")
		return 2
	}
	if !sharedBackend(cfg, "reconcile", "POST /api/analytics/sessions/<id>/reconcile", stderr) {
		return 2
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize services")
		return 1
	}
	defer a.Close()

	summary, err := a.Writer.ReconcileSession(ctx, args[0])
	if err != nil {
		fmt.Fprintf(stderr, "reconcile failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: %d page views, %d purchases, total %.2f\n",
		summary.SessionID, summary.PageViewCount, summary.PurchaseCount, summary.PurchaseTotal)
	return 0
}

func runFetchImage(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fetch-image", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "overall deadline; 0 waits indefinitely")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: storefrontctl fetch-image [-timeout d] <url>")
		return 2
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	payload, ok := imagerelay.New(nil).FetchAsInlinePayload(ctx, fs.Arg(0))
	if !ok {
		fmt.Fprintln(stderr, "image could not be fetched")
		return 1
	}
	fmt.Fprintln(stdout, payload)
	return 0
}

func runPageView(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("pageview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	session := fs.String("session", "", "session id; a new one is generated when empty")
	path := fs.String("path", "/", "route path")
	title := fs.String("title", "", "page title")
	apiURL := fs.String("api", cfg.TrackingURL, "tracking API base URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *session == "" {
		*session = instrument.NewSessionID()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Fire-and-forget: failures are logged by the client.
	instrument.NewClient(*apiURL, nil).PageMounted(ctx, *session, *path, *title)
	log.Info().Str("session_id", *session).Str("path", *path).Msg("Page view sent")
	return 0
}
