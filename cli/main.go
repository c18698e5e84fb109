package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"

	"echosync"
	"echosync/config"
	"echosync/download"
	"echosync/echo360"
	"echosync/session"
	"echosync/storage"
	"echosync/vault"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "download":
		cmdDownload(args)
	case "list":
		cmdList(args)
	case "urls":
		cmdURLs(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `echosync - lecture recording downloader

Usage:
  echosync download [flags] <course-url>...  Download lecture recordings
  echosync list <course-url>                 List a course's lectures
  echosync urls [flags] <course-url>         Print resolved stream URLs
  echosync help                              Show this help message

Examples:
  echosync download https://echo360.org.uk/section/<id>/home
  echosync download --select 1,3,5-8 <course-url>              # Specific lectures
  echosync download --save <course-url>                        # Persist the session
  echosync list <course-url>                                   # Lecture overview
  echosync urls --select all <course-url>                      # Resolve, don't download

For help on specific command: echosync <command> -h
`)
}

func cmdDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	selectExpr := fs.String("select", "all", "Lectures to download: 'all', or 1-based numbers and ranges (e.g. 1,3,5-8)")
	dest := fs.String("dest", "", "Destination directory (overrides config)")
	noHistory := fs.Bool("no-history", false, "Ignore the download history")
	save := fs.Bool("save", false, "Offer to save the session to the encrypted vault after login")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: echosync download [flags] <course-url>...\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	courseURLs := fs.Args()
	if len(courseURLs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing course-url\n")
		fs.Usage()
		os.Exit(1)
	}

	sel, err := echo360.ParseSelection(*selectExpr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	if *dest != "" {
		cfg.Destination = *dest
	}

	logger := newLogger()
	provider, captured := newProvider(cfg, logger)

	var history *storage.History
	if cfg.HistoryPath != "" && !*noHistory {
		history, err = storage.OpenHistory(cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
			os.Exit(1)
		}
		defer history.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := echosync.NewOrchestrator(cfg, provider, history, &consoleSink{}, logger)
	results, runErr := orch.Run(ctx, courseURLs, sel)

	failed := printResults(results)

	if *save && captured.cookies != nil {
		offerPersist(provider, captured)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Run interrupted: %v\n", runErr)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: echosync list <course-url>\n")
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing course-url\n")
		fs.Usage()
		os.Exit(1)
	}

	catalog := resolve(argv[0])
	if len(catalog) == 0 {
		fmt.Println("No lectures found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tTITLE\tVIDEO")

	for _, entry := range catalog {
		date := ""
		if !entry.Lecture.Date.IsZero() {
			date = entry.Lecture.Date.Format("2006-01-02")
		}

		video := "-"
		if best, ok := entry.BestStream(); ok {
			video = best.Label()
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", entry.Lecture.Index, date, truncate(entry.Lecture.Title, 50), video)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d lectures\n", len(catalog))
}

func cmdURLs(args []string) {
	fs := flag.NewFlagSet("urls", flag.ExitOnError)
	selectExpr := fs.String("select", "all", "Lectures to resolve: 'all', or 1-based numbers and ranges")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: echosync urls [flags] <course-url>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing course-url\n")
		fs.Usage()
		os.Exit(1)
	}

	sel, err := echo360.ParseSelection(*selectExpr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	catalog := resolve(argv[0])
	selected, outOfRange := sel.Apply(catalog)
	if len(outOfRange) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: no such lectures: %v (course has %d)\n", outOfRange, len(catalog))
	}

	urls := selected.StreamURLs()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "No downloadable streams.")
		return
	}
	for _, u := range urls {
		fmt.Println(u)
	}
}

// resolve fetches one course catalog, exiting on failure.
func resolve(courseURL string) echo360.Catalog {
	cfg := loadConfig()
	logger := newLogger()
	provider, _ := newProvider(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := echosync.NewOrchestrator(cfg, provider, nil, nil, logger)
	catalog, err := orch.Resolve(ctx, courseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving course: %v\n", err)
		os.Exit(1)
	}
	return catalog
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger() hclog.Logger {
	level := hclog.Info
	if v := os.Getenv("ECHOSYNC_LOG_LEVEL"); v != "" {
		level = hclog.LevelFromString(v)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "echosync",
		Level:  level,
		Output: os.Stderr,
	})
}

// capturedLogin remembers the cookies from an interactive login so the
// session can be offered for persistence afterwards.
type capturedLogin struct {
	origin  string
	cookies []*http.Cookie
}

// newProvider builds the session provider: vault-backed reuse with a manual
// cookie-paste login as the interactive capability. Institutions front the
// platform with their own single sign-on, so the login flow happens in the
// user's browser; the session cookie is pasted here.
func newProvider(cfg *config.Config, logger hclog.Logger) (*session.Provider, *capturedLogin) {
	captured := &capturedLogin{}

	p := &session.Provider{
		Passphrase: promptPassphrase,
		Login: func(ctx context.Context, loginURL string, creds session.Credentials) ([]*http.Cookie, error) {
			fmt.Fprintf(os.Stderr, "Log in with your browser at:\n  %s\n", loginURL)
			fmt.Fprint(os.Stderr, "Then paste the PLAY_SESSION cookie value here: ")

			value, err := readLine()
			if err != nil {
				return nil, err
			}
			if value == "" {
				return nil, fmt.Errorf("empty cookie value")
			}

			if u, err := url.Parse(loginURL); err == nil {
				captured.origin = u.Scheme + "://" + u.Host
			}
			captured.cookies = []*http.Cookie{{Name: "PLAY_SESSION", Value: value}}
			return captured.cookies, nil
		},
		Logger: logger.Named("session"),
	}

	if cfg.VaultPath != "" {
		p.Vault = vault.New(cfg.VaultPath)
	}
	return p, captured
}

func offerPersist(p *session.Provider, captured *capturedLogin) {
	if p.Vault == nil {
		fmt.Fprintln(os.Stderr, "No vault path configured; session not saved.")
		return
	}

	fmt.Fprint(os.Stderr, "Choose a passphrase to encrypt the saved session: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil || len(passphrase) == 0 {
		fmt.Fprintln(os.Stderr, "Session not saved.")
		return
	}

	sess := session.New(captured.origin, captured.cookies)
	if err := p.Persist(sess, string(passphrase)); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving session: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", p.Vault.Path())
}

func promptPassphrase(ctx context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Vault passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(passphrase), nil
}

func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// printResults summarizes each course and reports whether anything failed.
func printResults(results []echosync.CourseResult) bool {
	failed := false

	for _, r := range results {
		name := r.Title
		if name == "" {
			name = r.Course.SectionID
		}

		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "Course %s: %v\n", name, r.Err)
			failed = true
			continue
		}

		var completed, skipped, partial, broken int
		for _, o := range r.Outcomes {
			switch o.Status {
			case download.StatusCompleted:
				completed++
			case download.StatusSkipped:
				skipped++
			case download.StatusPartial:
				partial++
			case download.StatusFailed:
				broken++
				fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", o.Task.Label, o.Err)
			}
		}
		skipped += r.SkippedHistory + r.SkippedNoVideo

		if len(r.OutOfRange) > 0 {
			fmt.Fprintf(os.Stderr, "Course %s: no such lectures: %v (course has %d)\n", name, r.OutOfRange, len(r.Catalog))
		}
		fmt.Fprintf(os.Stderr, "Course %s: %d downloaded, %d skipped, %d partial, %d failed\n",
			name, completed, skipped, partial, broken)

		if broken > 0 {
			failed = true
		}
	}
	return failed
}

// consoleSink prints download lifecycle events to stderr.
type consoleSink struct{}

func (consoleSink) TaskStarted(task download.Task, resumeOffset, total int64) {
	if resumeOffset > 0 {
		fmt.Fprintf(os.Stderr, "Resuming %s at %s\n", task.Label, formatBytes(resumeOffset))
		return
	}
	fmt.Fprintf(os.Stderr, "Downloading %s (%s)\n", task.Label, formatBytes(total))
}

func (consoleSink) TaskProgress(task download.Task, transferred, total int64) {}

func (consoleSink) TaskFinished(task download.Task, outcome download.Outcome) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", task.Label, outcome.Status)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
