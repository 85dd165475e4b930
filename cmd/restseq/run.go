package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blackcoderx/restseq/pkg/grammar"
	"github.com/blackcoderx/restseq/pkg/report"
	"github.com/blackcoderx/restseq/pkg/resolver"
	"github.com/blackcoderx/restseq/pkg/sequencer"
	"github.com/blackcoderx/restseq/pkg/storage"
	"github.com/blackcoderx/restseq/pkg/transport"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	setValues []string
	plainOut  bool
	noSave    bool
)

func init() {
	runCmd.Flags().StringArrayVar(&setValues, "set", nil, "Override a fuzzable value (name=value), repeatable")
	runCmd.Flags().BoolVar(&plainOut, "plain", false, "Print the summary without markdown rendering")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write results")
	renderCmd.Flags().StringArrayVar(&setValues, "set", nil, "Override a fuzzable value (name=value), repeatable")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <grammar>",
	Short: "Send every request of a grammar to the target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(args[0])
		if err != nil {
			return err
		}
		defer app.logger.Sync()

		overrides, err := parseOverrides(setValues)
		if err != nil {
			return err
		}
		tokens, err := app.tokenProvider()
		if err != nil {
			return err
		}

		tcfg := transport.Config{
			Target:             app.cfg.Target,
			TLS:                app.cfg.TLS,
			InsecureSkipVerify: app.cfg.InsecureSkipVerify,
			RateLimit:          app.cfg.RateLimit,
		}
		// Validate the target before starting the run.
		first, err := transport.NewRaw(tcfg)
		if err != nil {
			return err
		}

		opts := []sequencer.Option{
			sequencer.WithTransport(first),
			sequencer.WithTokenProvider(tokens),
			sequencer.WithBasePath(app.cfg.BasePath),
			sequencer.WithTimeout(app.cfg.Timeout),
			sequencer.WithLogger(app.logger),
		}
		if len(overrides) > 0 {
			opts = append(opts, sequencer.WithOverrides(func(string) map[string]string { return overrides }))
		}
		seq, err := sequencer.New(app.coll, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := uuid.NewString()
		app.logger.Info("Starting run",
			zap.String("run_id", runID),
			zap.String("grammar", app.coll.Name),
			zap.String("target", app.cfg.Target),
			zap.Int("workers", app.cfg.Workers))

		startTime := time.Now()
		var steps []sequencer.Step
		if app.cfg.Workers > 1 {
			first.Close()
			steps, err = seq.RunParallel(ctx, app.strategy, app.cfg.Workers, func() (sequencer.Transport, error) {
				return transport.NewRaw(tcfg)
			})
		} else {
			defer first.Close()
			steps, err = seq.RunAll(ctx, app.strategy)
		}
		if err != nil {
			return err
		}
		summary := report.Summarize(runID, app.coll.Name, startTime, time.Now(), steps)

		printSummary(summary)

		if !noSave {
			if err := saveSummary(app, summary); err != nil {
				app.logger.Warn("Failed to save results", zap.Error(err))
			}
		}

		if summary.Failed > 0 || summary.Skipped > 0 {
			return fmt.Errorf("%d of %d requests did not succeed", summary.Failed+summary.Skipped, summary.Total)
		}
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <grammar>",
	Short: "Render every request without sending it",
	Long: `Render prints each request as it would be written to the wire. Dynamic
values are unavailable without a run, so requests consuming them report the
unresolved tag instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(args[0])
		if err != nil {
			return err
		}
		defer app.logger.Sync()

		overrides, err := parseOverrides(setValues)
		if err != nil {
			return err
		}
		tokens, err := app.tokenProvider()
		if err != nil {
			return err
		}
		seq, err := sequencer.New(app.coll, sequencer.WithLogger(app.logger))
		if err != nil {
			return err
		}
		order, err := seq.Order(app.strategy)
		if err != nil {
			return err
		}

		res := resolver.New(resolver.WithTokenProvider(tokens), resolver.WithLogger(app.logger)).WithOverrides(overrides)
		rc := &grammar.RenderContext{Context: cmd.Context(), Resolver: res, BasePath: app.cfg.BasePath}
		for _, id := range order {
			req, _ := app.coll.Get(id)
			fmt.Printf("### %s\n", id)
			raw, err := req.Render(rc)
			if err != nil {
				fmt.Printf("!! %v\n\n", err)
				continue
			}
			fmt.Println(string(raw))
		}
		return nil
	},
}

func parseOverrides(values []string) (map[string]string, error) {
	overrides := make(map[string]string, len(values))
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set value %q (want name=value)", kv)
		}
		overrides[name] = value
	}
	return overrides, nil
}

func printSummary(summary *report.Summary) {
	if plainOut {
		fmt.Print(report.Format(summary, false))
		return
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(report.Format(summary, true)) // Fallback to plain output
		return
	}

	out, err := renderer.Render(report.Markdown(summary))
	if err != nil {
		fmt.Print(report.Format(summary, true)) // Fallback
		return
	}
	fmt.Print(out)
}

func saveSummary(app *app, summary *report.Summary) error {
	dir := app.cfg.ResultsDir
	if dir == "" {
		dir = storage.GetResultsDir(baseDir)
	}
	path, err := storage.SaveResults(dir, summary)
	if err != nil {
		return err
	}
	app.logger.Info("Results saved", zap.String("path", path))

	if app.cfg.ResultsDB == "" {
		return nil
	}
	db, err := storage.OpenResultsDB(app.cfg.ResultsDB, app.logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveRun(summary)
}
