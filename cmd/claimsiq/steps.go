package main

import (
	"context"
	"fmt"
	"time"

	"github.com/claimsiq/claimsiq/internal/ingestion/export"
	"github.com/claimsiq/claimsiq/internal/ingestion/generator"
	"github.com/claimsiq/claimsiq/internal/ingestion/loader"
	"github.com/claimsiq/claimsiq/internal/pipeline"
	"github.com/claimsiq/claimsiq/internal/rag/indexer"
	"github.com/claimsiq/claimsiq/internal/transform"
)

// generatorOptions overlays step options on the generator defaults.
func generatorOptions(opts pipeline.Options) generator.Options {
	g := generator.DefaultOptions()
	g.Patients = opts.Int("patients", g.Patients)
	g.Providers = opts.Int("providers", g.Providers)
	g.ClaimsPerPatient = opts.Int("claims_per_patient", g.ClaimsPerPatient)
	g.NotesPerClaim = opts.Int("notes_per_claim", g.NotesPerClaim)
	if seed := opts.Int("seed", -1); seed >= 0 {
		g.Seed = uint64(seed)
	}
	if asOf, ok := opts["as_of"].(string); ok && asOf != "" {
		if t, err := time.Parse(export.DateLayout, asOf); err == nil {
			g.AsOf = t
		}
	}
	return g
}

func (a *app) dataDir(opts pipeline.Options) string {
	if dir, ok := opts["data_dir"].(string); ok && dir != "" {
		return dir
	}
	return a.cfg.DataDir
}

func (a *app) generateStep(_ context.Context, opts pipeline.Options) (pipeline.Details, error) {
	gopts := generatorOptions(opts)
	ds, err := generator.Generate(gopts)
	if err != nil {
		return nil, err
	}
	dir := a.dataDir(opts)
	files, err := export.WriteDataset(dir, ds)
	if err != nil {
		return nil, err
	}
	if _, err := export.WriteMetadata(dir, export.NewMetadata(ds, gopts.Seed, time.Now())); err != nil {
		return nil, err
	}

	counts := ds.Counts()
	a.logger.Info().Str("data_dir", dir).Int("files", len(files)).Interface("counts", counts).Msg("dataset generated")
	return pipeline.Details{
		"data_dir":  dir,
		"files":     len(files),
		"patients":  counts.Patients,
		"providers": counts.Providers,
		"claims":    counts.Claims,
		"notes":     counts.Notes,
	}, nil
}

func (a *app) ingestStep(ctx context.Context, opts pipeline.Options) (pipeline.Details, error) {
	l := loader.New(a.pool, a.migrator(), a.logger, a.metrics)
	results, err := l.LoadAll(ctx, a.dataDir(opts))
	if err != nil {
		return nil, err
	}
	details := pipeline.Details{"rows": results.Rows()}
	for _, r := range results {
		details[r.Table] = r.Status
	}
	if results.Failed() {
		return details, fmt.Errorf("one or more raw tables failed to load")
	}
	return details, nil
}

func (a *app) transformRunner() (*transform.Runner, error) {
	graph, err := transform.NewGraph(transform.DefaultModels())
	if err != nil {
		return nil, err
	}
	return transform.NewRunner(a.pool, graph, transform.NewPGRecorder(a.pool), a.logger), nil
}

func (a *app) transformStep(ctx context.Context, opts pipeline.Options) (pipeline.Details, error) {
	runner, err := a.transformRunner()
	if err != nil {
		return nil, err
	}
	res, err := runner.Run(ctx, transform.RunOptions{
		Select:      opts.Strings("select"),
		FullRefresh: opts.Bool("full_refresh", false),
	})
	if err != nil {
		return nil, err
	}
	details := pipeline.Details{"run_id": res.RunID.String()}
	for _, m := range res.Models {
		details[m.Model] = m.Status
	}
	if res.Failed() {
		return details, fmt.Errorf("transform run %s had failing models", res.RunID)
	}
	return details, nil
}

func (a *app) indexStep(ctx context.Context, opts pipeline.Options) (pipeline.Details, error) {
	engine, err := a.embeddingEngine(ctx)
	if err != nil {
		return nil, err
	}
	ix := indexer.New(indexer.NewPGSource(a.pool), a.vectorStore(), engine, a.logger, a.metrics)
	stats, err := ix.Index(ctx, indexer.Options{
		Reindex:   opts.Bool("reindex", false),
		BatchSize: opts.Int("batch_size", indexer.DefaultBatchSize),
		Workers:   opts.Int("workers", indexer.DefaultWorkers),
		Limit:     opts.Int("limit", 0),
	})
	if err != nil {
		return nil, err
	}
	return pipeline.Details{
		"notes":   stats.Notes,
		"chunks":  stats.Chunks,
		"skipped": stats.Skipped,
		"removed": stats.Removed,
		"model":   stats.Model,
	}, nil
}

func (a *app) pipelineSteps() map[string]pipeline.StepFunc {
	return map[string]pipeline.StepFunc{
		pipeline.StepGenerate:  a.generateStep,
		pipeline.StepIngest:    a.ingestStep,
		pipeline.StepTransform: a.transformStep,
		pipeline.StepIndex:     a.indexStep,
	}
}

// pipelineRunner loads the definition; PIPELINE_SCHEDULE overrides its schedule.
func (a *app) pipelineRunner() (*pipeline.Runner, error) {
	def, err := pipeline.Load(a.cfg.PipelineFile)
	if err != nil {
		return nil, err
	}
	if a.cfg.PipelineSchedule != "" {
		def.Schedule = a.cfg.PipelineSchedule
	}
	return pipeline.NewRunner(def, a.pipelineSteps(), pipeline.NewPGRecorder(a.pool), a.logger, a.metrics)
}

func loaderVerify(ctx context.Context, a *app) (map[string]int64, error) {
	return loader.New(a.pool, a.migrator(), a.logger, a.metrics).Verify(ctx)
}
