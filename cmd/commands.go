package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/app"
	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitRetryable = 75
)

// fieldList collects repeated -field name=value flags.
type fieldList map[string]string

func (l fieldList) String() string {
	parts := make([]string, 0, len(l))
	for k, v := range l {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (l fieldList) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("field %q must be name=value", v)
	}
	l[k] = val
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "contribute":
		return runContribute(ctx, args[1:], stdout, stderr)
	case "show":
		return runShow(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func runContribute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("contribute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "subject whose total receives the contribution")
	ciphertext := fs.String("ciphertext", "", "ciphertext as a decimal integer")
	modulus := fs.String("modulus", "", "public modulus n as a decimal integer")
	id := fs.String("id", "", "contribution id; resubmitting the same id is applied once")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	fields := fieldList{}
	fs.Var(fields, "field", "raw record field name=value for the ledger (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	// Validate before opening any store.
	opts := []accumulation.ContributionOption{accumulation.WithFields(fields)}
	if *id != "" {
		opts = append(opts, accumulation.WithContributionID(*id))
	}
	c, err := accumulation.NewContribution(*subject, *ciphertext, *modulus, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "contribute: %v\n", err)
		return exitCode(err)
	}

	a, log, code := openApp(ctx, stderr)
	if a == nil {
		return code
	}
	defer closeApp(a, log)

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	st, err := a.Orchestrator.ContributeWith(callCtx, c)
	if err != nil {
		return contributeFailed(stderr, c, err)
	}
	fmt.Fprintln(stdout, st.TotalString())
	return exitOK
}

// contributeFailed reports err. When the outcome may be retried, the
// contribution id is printed so the rerun can pass it with -id and stay
// exactly-once.
func contributeFailed(stderr io.Writer, c accumulation.Contribution, err error) int {
	code := exitCode(err)
	fmt.Fprintf(stderr, "contribute: %v\n", err)
	if code == exitRetryable {
		fmt.Fprintf(stderr, "contribution id: %s (retry with -id %s)\n", c.ID, c.ID)
	}
	return code
}

func runShow(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "subject to print")
	verbose := fs.Bool("v", false, "also print modulus, version and recent contribution ids")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, log, code := openApp(ctx, stderr)
	if a == nil {
		return code
	}
	defer closeApp(a, log)

	st, err := a.Orchestrator.Load(ctx, strings.TrimSpace(*subject))
	if err != nil {
		fmt.Fprintf(stderr, "show: %v\n", err)
		return exitCode(err)
	}
	fmt.Fprintln(stdout, st.TotalString())
	if *verbose {
		fmt.Fprintf(stdout, "modulus=%s\nversion=%d\nrecent=%s\n", st.Modulus.String(), st.Version, strings.Join(st.RecentContributions, ","))
	}
	return exitOK
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	a, log, code := openApp(ctx, stderr)
	if a == nil {
		return code
	}
	defer closeApp(a, log)

	if err := a.Serve(ctx); err != nil {
		log.Error("admin server exited", "error", err)
		return exitFailure
	}
	return exitOK
}

func openApp(ctx context.Context, stderr io.Writer) (*app.App, *logger.Logger, int) {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return nil, nil, exitUsage
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return nil, nil, exitFailure
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		fmt.Fprintf(stderr, "init app: %v\n", err)
		return nil, nil, exitFailure
	}
	return a, log, exitOK
}

func closeApp(a *app.App, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	if n := a.LedgerFailures(); n > 0 {
		log.Warn("ledger records were not written", "count", n)
	}
}

func exitCode(err error) int {
	code := domainagg.CodeOf(err)
	switch {
	case code == domainagg.CodeInvalidInput,
		code == domainagg.CodeInvalidCiphertext,
		code == domainagg.CodeModulusMismatch:
		return exitUsage
	case code.Retryable():
		return exitRetryable
	case errors.Is(err, context.Canceled):
		return exitRetryable
	default:
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cipheragg <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  contribute  fold one ciphertext into a subject's encrypted total")
	fmt.Fprintln(w, "  show        print a subject's encrypted total")
	fmt.Fprintln(w, "  serve       run the read-only admin HTTP server")
}
