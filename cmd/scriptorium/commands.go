package main

import (
	"fmt"
	"time"

	"github.com/poiesic/scriptorium"
	"github.com/poiesic/scriptorium/ai/openai"
	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
	"github.com/poiesic/scriptorium/pipeline"
	"github.com/poiesic/scriptorium/staging"
	"github.com/poiesic/scriptorium/storage/badger"
	"github.com/urfave/cli/v2"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Print duplicate diagnostics for a staging file",
		Flags: []cli.Flag{inputFlag},
		Action: func(c *cli.Context) error {
			doc, err := staging.Read(c.String("input"))
			if err != nil {
				return err
			}
			opts := dedupe.DefaultDiagnosticOptions()
			opts.PrefixLen = appConfig(c).Import.PrefixLen
			d := dedupe.Analyze(doc.Entries, opts)

			w := c.App.Writer
			fmt.Fprintf(w, "Entries:          %d\n", d.Total)
			fmt.Fprintf(w, "Exact duplicates: %d\n", len(d.ExactDuplicates))
			fmt.Fprintln(w, "Books:")
			for _, b := range d.Books {
				fmt.Fprintf(w, "  %-30s %d\n", b.Label, b.Count)
			}
			if len(d.ChapterGroups) > 0 {
				fmt.Fprintln(w, "Repeated chapters:")
				for _, g := range d.ChapterGroups {
					fmt.Fprintf(w, "  %s %s x%d\n", g.Book, g.Marker, g.Count)
				}
			}
			if len(d.RepeatedPrefixes) > 0 {
				fmt.Fprintln(w, "Repeated openings:")
				for _, p := range d.RepeatedPrefixes[:min(len(d.RepeatedPrefixes), 10)] {
					fmt.Fprintf(w, "  %q x%d\n", p.Label, p.Count)
				}
			}
			return nil
		},
	}
}

func dedupeCommand() *cli.Command {
	return &cli.Command{
		Name:  "dedupe",
		Usage: "Drop duplicate passages from a staging file",
		Flags: []cli.Flag{inputFlag, outputFlag},
		Action: func(c *cli.Context) error {
			doc, err := staging.Read(c.String("input"))
			if err != nil {
				return err
			}
			res := dedupe.Dedupe(doc.Entries, appConfig(c).Import.PrefixLen)
			appMetrics(c).ObserveDuplicates(len(res.Duplicates))

			doc.Entries = res.Unique
			if err := staging.Write(c.String("output"), doc); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Kept %d of %d entries (%d duplicates)\n",
				len(res.Unique), len(res.Unique)+len(res.Duplicates), len(res.Duplicates))
			return nil
		},
	}
}

func embedCommand() *cli.Command {
	return &cli.Command{
		Name:  "embed",
		Usage: "Generate embeddings for entries of a staging file that lack one",
		Flags: []cli.Flag{inputFlag, outputFlag},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			aiCfg, err := cfg.AIConfig()
			if err != nil {
				return err
			}
			doc, err := staging.Read(c.String("input"))
			if err != nil {
				return err
			}

			provider, err := openai.NewProvider(aiCfg)
			if err != nil {
				return err
			}
			defer provider.Close()
			gen, err := embed.NewGenerator(provider.Embedder(), cfg.GeneratorOptions())
			if err != nil {
				return err
			}

			progress := embed.NewProgressTracker(c.App.ErrWriter, len(doc.Entries), cfg.Embedding.BatchSize).WithLabel("Embedding")
			entries, report, runErr := embed.EmbedEntries(c.Context, gen, doc.Entries, embed.BatchOptions{
				BatchSize: cfg.Embedding.BatchSize,
				Throttle:  embed.NewThrottle(cfg.Embedding.BatchPause),
				Progress:  progress,
			})
			appMetrics(c).ObserveEmbedding(report)

			// Write what we have even when interrupted, so the next run only
			// embeds the remainder.
			doc.Entries = entries
			doc.Stamp(cfg.Embedding.Model, cfg.Embedding.Dimension, time.Now())
			if err := staging.Write(c.String("output"), doc); err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Embedded %d, already had %d, failed %d (rate %s)\n",
				report.Embedded, report.AlreadyEmbedded, report.Skipped,
				staging.FormatRate(report.Embedded+report.AlreadyEmbedded, report.Total))
			for _, e := range report.Errors {
				fmt.Fprintf(w, "  - #%d %q: %v\n", e.Index, e.Title, e.Err)
			}
			return runErr
		},
	}
}

// openDatabase validates the configuration and opens the store with the
// embedding client. Configuration errors surface before the store is touched.
func openDatabase(c *cli.Context) (*scriptorium.Database, error) {
	cfg := appConfig(c)
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	aiCfg, err := cfg.AIConfig()
	if err != nil {
		return nil, err
	}
	opts := []scriptorium.Option{
		scriptorium.WithAIConfig(aiCfg),
		scriptorium.WithGeneratorOptions(cfg.GeneratorOptions()),
		scriptorium.WithMetrics(appMetrics(c)),
	}
	if cfg.Database.InMemory {
		opts = append(opts, scriptorium.WithInMemory())
	}
	return scriptorium.Open(cfg.Database.Path, opts...)
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Deduplicate, embed and import a staging file into the store",
		Flags: append([]cli.Flag{
			inputFlag,
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Skip entries whose content is already stored",
			},
		}, modeFlags...),
		Action: func(c *cli.Context) error {
			doc, err := staging.Read(c.String("input"))
			if err != nil {
				return err
			}
			db, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			mode := resolveMode(c, fmt.Sprintf("Import %d entries?", len(doc.Entries)))
			p, err := db.NewPipeline(appConfig(c).PipelineConfig(mode, c.Bool("resume")),
				pipeline.WithProgress(c.App.ErrWriter))
			if err != nil {
				return err
			}

			report, runErr := p.Run(c.Context, doc.Entries)
			if report == nil {
				return runErr
			}
			report.Summary(c.App.Writer)
			return runErr
		},
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-duplicates",
		Usage: "Delete stored records that duplicate an earlier record",
		Flags: modeFlags,
		Action: func(c *cli.Context) error {
			db, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			mode := resolveMode(c, "Delete duplicate records from the store?")
			report, err := db.NewPurger(appConfig(c).PurgeOptions(mode)).Run(c.Context)
			appMetrics(c).ObservePurge(report)
			if report != nil {
				w := c.App.Writer
				fmt.Fprintf(w, "Mode: %s\nScanned: %d\nUnique: %d\nDuplicates: %d\nDeleted: %d\nFailed: %d\n",
					report.Mode, report.Scanned, report.Unique, report.Duplicates, report.Deleted, report.Failed)
				for _, e := range report.Errors {
					fmt.Fprintf(w, "  - %s\n", e)
				}
			}
			return err
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Compare the stored record count with an expected total",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "expected",
				Usage:    "Expected number of records",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}
			// Counting needs no embedding client, so open the store directly.
			backend, err := badger.OpenBackend(cfg.Database.Path, cfg.Database.InMemory)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer backend.Close()
			repo, err := badger.NewKnowledgeRepository(backend, cfg.Embedding.Dimension)
			if err != nil {
				return err
			}
			defer repo.Close()

			v, err := importer.VerifyStore(c.Context, repo, c.Int("expected"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, v.String())
			if !v.OK {
				return cli.Exit("record count mismatch", 1)
			}
			return nil
		},
	}
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Regenerate the embedding of every stored record",
		Flags: modeFlags,
		Action: func(c *cli.Context) error {
			db, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			mode := resolveMode(c, "Regenerate embeddings for all stored records?")
			r, err := db.NewReembedder(appConfig(c).ReembedConfig(mode), c.App.ErrWriter)
			if err != nil {
				return err
			}
			report, runErr := r.Run(c.Context)
			if report == nil {
				return runErr
			}
			appMetrics(c).ObserveReembed(report.Updated, report.Failed, report.Skipped)

			w := c.App.Writer
			fmt.Fprintf(w, "Mode: %s\nVisited: %d\nUpdated: %d\nPlanned: %d\nFailed: %d\nSkipped: %d\n",
				report.Mode, report.Visited, report.Updated, report.Planned, report.Failed, report.Skipped)
			if report.Coverage.Total > 0 {
				fmt.Fprintf(w, "Coverage: %d/%d (%.2f%%)\n", report.Coverage.Embedded, report.Coverage.Total, report.Coverage.Rate())
			}
			for _, e := range report.Errors {
				fmt.Fprintf(w, "  - %s\n", e)
			}
			return runErr
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find stored passages similar to one or more queries",
		ArgsUsage: "QUERY [QUERY...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum results per query",
				Value: 5,
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Minimum cosine similarity",
				Value: 0.3,
			},
		},
		Action: func(c *cli.Context) error {
			queries := c.Args().Slice()
			if len(queries) == 0 {
				return cli.Exit("at least one query is required", 2)
			}
			db, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := db.NewSearcher()
			if err != nil {
				return err
			}
			defer s.Release()

			results, err := s.SearchMany(c.Context, queries, c.Int("limit"), float32(c.Float64("threshold")))
			w := c.App.Writer
			for i, q := range queries {
				fmt.Fprintf(w, "%s: %d hits\n", q, len(results[i]))
				for j, hit := range results[i] {
					fmt.Fprintf(w, "  %d: [%0.3f] (%d) %s\n", j, hit.Score, hit.Record.ID, preview(hit.Record.Content))
				}
			}
			return err
		},
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 60 {
		return string(r)
	}
	return string(r[:60]) + "..."
}
