package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/claimsiq/claimsiq/internal/assistant"
	"github.com/claimsiq/claimsiq/internal/mcpserver"
	"github.com/claimsiq/claimsiq/internal/pipeline"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
	"github.com/claimsiq/claimsiq/internal/reporting"
	"github.com/claimsiq/claimsiq/internal/transform"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "claimsiq",
		Short:        "Healthcare claims analytics: ETL, transforms, semantic search and Q&A",
		SilenceUsage: true,
	}
	root.AddCommand(
		generateCmd(),
		ingestCmd(),
		migrateCmd(),
		transformCmd(),
		indexCmd(),
		askCmd(),
		reportCmd(),
		pipelineCmd(),
		serveCmd(),
		mcpCmd(),
	)
	return root
}

// withApp opens the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func generateCmd() *cobra.Command {
	var (
		patients, providers, claimsPer, notesPer int
		seed                                     uint64
		out, asOf                                string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic claims dataset as CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{noDB: true}, func(ctx context.Context, a *app) error {
				details, err := a.generateStep(ctx, pipeline.Options{
					"patients":           patients,
					"providers":          providers,
					"claims_per_patient": claimsPer,
					"notes_per_claim":    notesPer,
					"seed":               int(seed),
					"data_dir":           out,
					"as_of":              asOf,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated %v patients, %v providers, %v claims, %v notes in %s\n",
					details["patients"], details["providers"], details["claims"], details["notes"], details["data_dir"])
				return nil
			})
		},
	}
	d := generatorOptions(nil)
	cmd.Flags().IntVar(&patients, "patients", d.Patients, "Number of patients")
	cmd.Flags().IntVar(&providers, "providers", d.Providers, "Number of providers")
	cmd.Flags().IntVar(&claimsPer, "claims-per-patient", d.ClaimsPerPatient, "Claims per patient")
	cmd.Flags().IntVar(&notesPer, "notes-per-claim", d.NotesPerClaim, "Clinical notes per claim")
	cmd.Flags().Uint64Var(&seed, "seed", d.Seed, "Random seed (0 picks one)")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default DATA_DIR)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Anchor date YYYY-MM-DD (default today)")
	return cmd
}

func ingestCmd() *cobra.Command {
	var dir string
	var verify bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load raw CSV files into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				details, err := a.ingestStep(ctx, pipeline.Options{"data_dir": dir})
				if details != nil {
					if perr := printJSON(cmd.OutOrStdout(), details); perr != nil {
						return perr
					}
				}
				if err != nil || !verify {
					return err
				}
				counts, err := loaderVerify(ctx, a)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the CSV files (default DATA_DIR)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Print row counts of the raw tables afterwards")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var target int
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				count, err := a.migrator().UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().IntVar(&target, "to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				statuses, err := a.migrator().Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
				for _, s := range statuses {
					status, applied := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							applied = s.AppliedAt.Format(time.RFC3339)
						}
					}
					fmt.Fprintf(tw, "%03d\t%s\t%s\t%s\n", s.Version, s.Name, status, applied)
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(statusCmd)
	return cmd
}

func transformCmd() *cobra.Command {
	var (
		selectors   []string
		fullRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Build the staging, dimension and fact models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				details, err := a.transformStep(ctx, pipeline.Options{
					"select":       selectors,
					"full_refresh": fullRefresh,
				})
				if details != nil {
					if perr := printJSON(cmd.OutOrStdout(), details); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&selectors, "select", nil, "Models to build; model+ adds downstream, +model adds upstream")
	cmd.Flags().BoolVar(&fullRefresh, "full-refresh", false, "Rebuild incremental models from scratch")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the most recent run of each model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				runs, err := transform.NewPGRecorder(a.pool).LastRuns(ctx)
				if err != nil {
					return fmt.Errorf("failed to get transform status: %w", err)
				}
				return writeModelRuns(cmd.OutOrStdout(), runs)
			})
		},
	})
	return cmd
}

func writeModelRuns(w io.Writer, runs []transform.ModelResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tSTATUS\tROWS\tTESTS PASSED\tFINISHED AT\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Model, r.Status, r.RowsAffected, r.TestsPassed, r.FinishedAt.Format(time.RFC3339), r.Error)
	}
	return tw.Flush()
}

func indexCmd() *cobra.Command {
	var (
		reindex        bool
		batch, workers int
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and store clinical notes for semantic search",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				details, err := a.indexStep(ctx, pipeline.Options{
					"reindex":    reindex,
					"batch_size": batch,
					"workers":    workers,
					"limit":      limit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), details)
			})
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Re-embed notes that are already indexed")
	cmd.Flags().IntVar(&batch, "batch-size", 32, "Chunks per embedding request")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent embedding batches")
	cmd.Flags().IntVar(&limit, "limit", 0, "Index at most this many notes (0 for all)")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		topK     int
		claimID  string
		asJSON   bool
		asHTML   bool
		status   string
		noteType string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about claims, denials and clinical notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				asst, err := a.assistant(ctx)
				if err != nil {
					return err
				}
				q := assistant.Question{
					Text: strings.Join(args, " "),
					TopK: topK,
					Filters: vectorstore.Filters{
						ClaimID:     claimID,
						ClaimStatus: status,
						NoteType:    noteType,
					},
				}
				if asHTML {
					q.Format = "html"
				}
				ans, err := asst.Ask(ctx, q)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), ans)
				}
				writeAnswer(cmd.OutOrStdout(), ans)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", vectorstore.DefaultTopK, "Note chunks to retrieve")
	cmd.Flags().StringVar(&claimID, "claim", "", "Restrict note retrieval to one claim")
	cmd.Flags().StringVar(&status, "status", "", "Restrict note retrieval by claim status")
	cmd.Flags().StringVar(&noteType, "note-type", "", "Restrict note retrieval by note type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full answer as JSON")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Include an HTML rendering of the answer")
	return cmd
}

func writeAnswer(w io.Writer, ans *assistant.Answer) {
	fmt.Fprintln(w, ans.Text)
	if ans.HTML != "" {
		fmt.Fprintf(w, "\n%s", ans.HTML)
	}
	if len(ans.Citations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, c := range ans.Citations {
		line := fmt.Sprintf("  [%d] %s %s", c.Index, c.Kind, c.Ref)
		if c.Score > 0 {
			line += fmt.Sprintf(" (score %.3f)", c.Score)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%s, %s, %s\n", ans.Intent, ans.Model, ans.Latency.Round(time.Millisecond))
}

func reportCmd() *cobra.Command {
	var (
		out      string
		measures []string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Evaluate analytics measures and write them as PDF or text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				params := map[string]string{}
				if from != "" {
					params["from"] = from
				}
				if to != "" {
					params["to"] = to
				}
				reports, err := evaluateMeasures(ctx, a.reportingService(), measures, params)
				if err != nil {
					return err
				}
				if out == "" {
					for _, r := range reports {
						fmt.Fprintln(cmd.OutOrStdout(), r.Text(0))
					}
					return nil
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := reporting.WritePDF(f, reports); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				a.logger.Info().Str("file", out).Int("measures", len(reports)).Msg("report written")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "PDF output file (prints text when empty)")
	cmd.Flags().StringSliceVar(&measures, "measure", nil, "Measure ids (default all)")
	cmd.Flags().StringVar(&from, "from", "", "Window start YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Window end YYYY-MM-DD")
	return cmd
}

func evaluateMeasures(ctx context.Context, svc *reporting.Service, ids []string, params map[string]string) ([]*reporting.MeasureReport, error) {
	if len(ids) == 0 {
		return svc.EvaluateAll(ctx, params)
	}
	out := make([]*reporting.MeasureReport, 0, len(ids))
	for _, id := range ids {
		r, err := svc.Evaluate(ctx, id, params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run generate, ingest, transform and index as one pipeline",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				runner, err := a.pipelineRunner()
				if err != nil {
					return err
				}
				run, err := runner.Run(ctx, pipeline.TriggerManual)
				if run != nil {
					if perr := printJSON(cmd.OutOrStdout(), run); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on its cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				runner, err := a.pipelineRunner()
				if err != nil {
					return err
				}
				sched, err := pipeline.NewScheduler(runner, runner.Definition().Schedule, a.logger)
				if err != nil {
					return err
				}
				if err := sched.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				sched.Stop()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
				runs, err := pipeline.NewPGRecorder(a.pool).Recent(ctx, 10)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), runs)
			})
		},
	})
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			return withApp(cmd, appOptions{logTo: os.Stderr}, func(ctx context.Context, a *app) error {
				asst, err := a.assistant(ctx)
				if err != nil {
					return err
				}
				srv := mcpserver.New(asst, a.claimsService(), a.reportingService(), a.logger)
				return srv.ServeStdio(version)
			})
		},
	}
}
