// jobctl submits generation jobs and follows them from the command line.
//
//	jobctl login  --email a@b.c --password ...
//	jobctl submit [--kind article|image] [--wait] [--context k=v ...] <prompt>
//	jobctl get    <job_id>
//	jobctl wait   [--interval 1s] <job_id>
//
// JOBS_URL and JOBS_TOKEN provide the defaults for --url and --token.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/suPer8Hu/genjobs/internal/client"
	"github.com/suPer8Hu/genjobs/internal/genjob"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	// job reached the failed state
	exitJobFailed = 3
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 {
		usage(stderr)
		return exitUsage
	}
	cmd, rest := argv[0], argv[1:]
	switch cmd {
	case "login":
		return runLogin(ctx, rest, stdout, stderr)
	case "submit":
		return runSubmit(ctx, rest, stdout, stderr)
	case "get":
		return runGet(ctx, rest, stdout, stderr)
	case "wait":
		return runWait(ctx, rest, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "jobctl: unknown command %q\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: jobctl <login|submit|get|wait> [flags]")
}

type common struct {
	url   string
	token string
	json  bool
}

func (c *common) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.url, "url", envOr("JOBS_URL", "http://localhost:8080"), "API base URL.")
	fs.StringVar(&c.token, "token", os.Getenv("JOBS_TOKEN"), "Bearer token.")
	fs.BoolVar(&c.json, "json", false, "Print JSON.")
}

func (c *common) client() *client.Client { return client.New(c.url, c.token) }

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// contextFlags collects repeated --context key=value pairs.
type contextFlags map[string]string

func (f contextFlags) String() string { return fmt.Sprint(map[string]string(f)) }
func (f contextFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[strings.TrimSpace(k)] = strings.TrimSpace(val)
	return nil
}

func runLogin(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf common
	cf.bind(fs)
	login := fs.String("email", "", "Email or username.")
	password := fs.String("password", os.Getenv("JOBS_PASSWORD"), "Password.")
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}
	if *login == "" || *password == "" {
		fmt.Fprintln(stderr, "login: --email and --password are required")
		return exitUsage
	}
	tok, err := cf.client().Login(ctx, *login, *password)
	if err != nil {
		fmt.Fprintf(stderr, "login: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, tok)
	return exitOK
}

func runSubmit(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf common
	cf.bind(fs)
	ctxVals := contextFlags{}
	kind := fs.String("kind", "article", "Job kind: article or image.")
	provider := fs.String("provider", "", "Text provider (default: server default).")
	model := fs.String("model", "", "Model override.")
	size := fs.String("size", "", "Image size, image jobs only.")
	idem := fs.String("idempotency-key", "", "Replay-safe submission key.")
	wait := fs.Bool("wait", false, "Poll until the job finishes.")
	interval := fs.Duration("interval", time.Second, "Poll interval with --wait.")
	fs.Var(ctxVals, "context", "Extra key=value input, repeatable.")
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(stderr, "submit: prompt is required")
		return exitUsage
	}

	c := cf.client()
	res, err := c.Submit(ctx, genjob.Input{
		Kind:     genjob.Kind(*kind),
		Prompt:   prompt,
		Context:  ctxVals,
		Provider: *provider,
		Model:    *model,
		Size:     *size,
	}, *idem)
	if err != nil {
		fmt.Fprintf(stderr, "submit: %v\n", err)
		return exitError
	}
	if !*wait {
		if cf.json {
			return printJSON(stdout, res)
		}
		fmt.Fprintln(stdout, res.JobID)
		return exitOK
	}
	return follow(ctx, c, res.JobID, *interval, cf.json, stdout, stderr)
}

func runGet(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf common
	cf.bind(fs)
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "get: exactly one job id is required")
		return exitUsage
	}
	v, err := cf.client().Fetch(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "get: %v\n", err)
		return exitError
	}
	if cf.json {
		return printJSON(stdout, v)
	}
	printView(stdout, v)
	return exitOK
}

func runWait(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf common
	cf.bind(fs)
	interval := fs.Duration("interval", time.Second, "Poll interval.")
	if err := fs.Parse(argv); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "wait: exactly one job id is required")
		return exitUsage
	}
	return follow(ctx, cf.client(), fs.Arg(0), *interval, cf.json, stdout, stderr)
}

func follow(ctx context.Context, c *client.Client, jobID string, interval time.Duration, jsonOut bool, stdout, stderr io.Writer) int {
	lastProgress := -1
	v, err := c.Wait(ctx, jobID, interval, func(v genjob.View) {
		if v.Progress != lastProgress {
			lastProgress = v.Progress
			fmt.Fprintf(stderr, "%s %s %d%%\n", v.ID, v.Status, v.Progress)
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "stopped waiting; job %s keeps running\n", jobID)
		} else {
			fmt.Fprintf(stderr, "wait: %v\n", err)
		}
		return exitError
	}
	if jsonOut {
		printJSON(stdout, v)
	} else {
		printView(stdout, v)
	}
	if v.Status == genjob.StatusFailed {
		return exitJobFailed
	}
	return exitOK
}

func printView(w io.Writer, v *genjob.View) {
	fmt.Fprintf(w, "id:       %s\nkind:     %s\nstatus:   %s\nprogress: %d\n", v.ID, v.Kind, v.Status, v.Progress)
	if v.ErrorMessage != nil {
		fmt.Fprintf(w, "error:    %s\n", *v.ErrorMessage)
	}
	if v.PartialContent != nil {
		fmt.Fprintf(w, "preview:\n%s\n", *v.PartialContent)
	}
	if len(v.ResultData) > 0 {
		fmt.Fprintf(w, "result:\n%s\n", v.ResultData)
	}
}

func printJSON(w io.Writer, v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitError
	}
	_, _ = w.Write(append(b, '\n'))
	return exitOK
}
