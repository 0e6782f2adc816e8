package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/logstream/pkg/config"
	"github.com/ccollicutt/logstream/pkg/output"
	"github.com/ccollicutt/logstream/pkg/session"
	"github.com/ccollicutt/logstream/pkg/source"
	"github.com/ccollicutt/logstream/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// ObserveOptions holds command-line options for the observe command.
type ObserveOptions struct {
	Output     string
	Verbose    bool
	Quiet      bool
	Sequential bool

	// MetricsAddr serves Prometheus metrics while the session runs.
	MetricsAddr string

	// ForwardStdin names a process source that receives stdin lines.
	ForwardStdin string

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

// NewObserveCommand creates the observe command.
func NewObserveCommand() *cobra.Command {
	opts := &ObserveOptions{}

	cmd := &cobra.Command{
		Use:   "observe <config-file>",
		Short: "Stream log sources into a session store",
		Long: `Observe the sources defined in the configuration file and write every
parsed record into the session store.

Sources are read concurrently unless --sequential is given. File sources
with tail enabled keep following the file until interrupted.

Exit codes:
  0 - All sources ended cleanly
  1 - At least one source ended with an error
  2 - Configuration or runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObserve(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Debug logging and per-source counters")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no details")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "Read sources one after another")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&opts.ForwardStdin, "forward-stdin", "", "Send stdin lines to the named process source")

	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", string(webhook.TriggerOnErrors), "When to fire webhook (on_errors|always|never)")

	return cmd
}

func runObserve(cmd *cobra.Command, args []string, opts *ObserveOptions) error {
	configPath := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Sequential {
		cfg.Session.Sequential = true
	}

	sources, err := cfg.ExpandSources(ctx)
	if err != nil {
		return fmt.Errorf("expanding sources: %w", err)
	}
	specs, err := buildSourceSpecs(sources)
	if err != nil {
		return err
	}
	if opts.ForwardStdin != "" && !hasProcessSource(sources, opts.ForwardStdin) {
		return fmt.Errorf("--forward-stdin: %q is not a process source", opts.ForwardStdin)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts)

	st, err := openStore(&cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	state := session.NewState(st, logger)
	if err := state.SetSessionFile(ctx, cfg.Store.Path); err != nil {
		return err
	}

	var metrics *session.Metrics
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = session.NewMetrics(reg)
		shutdown, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			_ = state.Close(ctx)
			return err
		}
		defer shutdown()
	}

	obs := session.NewObserver(state, specs, session.ObserverOptions{
		Sequential:             cfg.Session.Sequential,
		FlushInterval:          cfg.Session.FlushInterval,
		TailInterval:           cfg.Session.TailInterval,
		InitialParseErrorLimit: cfg.Session.InitialParseErrorLimit,
		Logger:                 logger,
		Metrics:                metrics,
	})

	if opts.ForwardStdin != "" {
		go forwardLines(ctx, stdin, obs.SDE(opts.ForwardStdin), logger)
	}

	started := time.Now()
	runErr := obs.Run(ctx)
	closeErr := state.Close(context.WithoutCancel(ctx))

	report := output.NewReport(state.Summary(), output.Metadata{
		ConfigFile: configPath,
		Store:      cfg.Store.Path,
		StartedAt:  started,
		Duration:   time.Since(started),
	})

	if err := formatter.Format(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	// Webhook failures are reported but do not fail the session.
	sendWebhooks(context.WithoutCancel(ctx), cmd.ErrOrStderr(), cfg, opts, report)

	if runErr != nil {
		return fmt.Errorf("observe failed: %w", runErr)
	}
	if closeErr != nil {
		return closeErr
	}

	if report.HasFailures() {
		ExitCode = 1
	}

	return nil
}

func newLogger(w io.Writer, opts *ObserveOptions) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.Verbose:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func hasProcessSource(sources []config.SourceConfig, name string) bool {
	for i := range sources {
		if sources[i].Name == name && sources[i].SourceTypeEnum() == config.SourceTypeProcess {
			return true
		}
	}
	return false
}

// serveMetrics starts a Prometheus endpoint and returns its shutdown
// function.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// forwardLines sends every line read from r to a source as an SDE text
// request. It stops at EOF or when ctx is done.
func forwardLines(ctx context.Context, r io.Reader, sde chan<- session.SDEMsg, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		reply := make(chan session.SDEResult, 1)
		msg := session.SDEMsg{
			Request: source.SDERequest{Kind: source.SDEWriteText, Payload: []byte(scanner.Text())},
			Reply:   reply,
		}

		select {
		case sde <- msg:
		case <-ctx.Done():
			return
		}

		select {
		case res := <-reply:
			if res.Err != nil {
				logger.Warn("forwarding stdin", "error", res.Err)
			}
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading stdin", "error", err)
	}
}

// sendWebhooks sends the report to all configured webhooks.
// Errors are printed to w but don't fail the session.
func sendWebhooks(ctx context.Context, w io.Writer, cfg *config.Config, opts *ObserveOptions, report *output.Report) {
	webhooks := collectWebhooks(cfg, opts)

	if len(webhooks) == 0 {
		return
	}

	client := webhook.NewClient(nil)

	for _, wh := range webhooks {
		if !webhook.ShouldFire(wh.Trigger, report) {
			continue
		}

		resp := client.Send(ctx, report, webhook.SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout,
		})

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		if resp.Success() {
			fmt.Fprintf(w, "Webhook %s: sent (%d, %s)\n", name, resp.StatusCode, resp.Duration)
		} else {
			fmt.Fprintf(w, "Webhook %s: failed (%v)\n", name, resp.Error)
		}
	}
}

// collectWebhooks merges config file webhooks with CLI webhook.
func collectWebhooks(cfg *config.Config, opts *ObserveOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)

	webhooks = append(webhooks, cfg.Webhooks...)

	if opts.WebhookURL != "" {
		trigger := webhook.Trigger(opts.WebhookTrigger)
		if trigger == "" {
			trigger = webhook.TriggerOnErrors
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}
