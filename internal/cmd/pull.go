package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/econlens/econlens/internal/config"
	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/provider"
	"github.com/econlens/econlens/internal/observability"
	"github.com/econlens/econlens/internal/output"
)

var pullCmd = &cobra.Command{
	Use:   "pull <manifest>",
	Short: "Fetch multiple series from a manifest",
	Long:  "Read a YAML manifest of series requests and fetch them concurrently through the shared pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("output", "table", "Output format: table, json, markdown")
	pullCmd.Flags().String("out-dir", "", "Write one file per series to a directory")
	pullCmd.Flags().Int("concurrency", 0, "Concurrent fetches (default from config)")
	pullCmd.Flags().Duration("ttl", 0, "Cache TTL override for all fetches")
	pullCmd.Flags().Bool("no-cache", false, "Bypass the cache entirely")
}

// pullManifest is the on-disk shape of a pull request list.
type pullManifest struct {
	Series []pullEntry `yaml:"series"`
}

type pullEntry struct {
	Source    string `yaml:"source"`
	ID        string `yaml:"id"`
	Geography string `yaml:"geo"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Variant   string `yaml:"variant"`
}

func runPull(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd, "output")
	if err != nil {
		return err
	}

	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	requests, err := readPullManifest(args[0])
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return errors.New("no series found in manifest")
	}

	ctx := cmd.Context()
	startedAt := time.Now()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally

	cfg := config.GetConfig()
	if cfg == nil {
		return errors.New("config not loaded")
	}
	if concurrency < 1 {
		concurrency = cfg.Workers
	}
	if concurrency < 1 {
		concurrency = 1
	}

	service := buildService(cfg, db)
	opts := provider.FetchOptions{TTL: ttl, NoCache: noCache}

	reports, err := runPullFetches(ctx, service, requests, opts, concurrency)
	if err != nil {
		return err
	}

	outDir = strings.TrimSpace(outDir)
	if outDir != "" {
		if err := writePullReports(outDir, format, reports); err != nil {
			return err
		}
	}

	rendered, err := output.FormatSeriesList(format, reports)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) != "" && outDir == "" {
		fmt.Println(rendered)
	}

	logPullThroughput(reports, startedAt)
	return nil
}

type pullJob struct {
	index int
	req   core.SeriesRequest
}

func runPullFetches(ctx context.Context, service *provider.Service, requests []core.SeriesRequest, opts provider.FetchOptions, concurrency int) ([]*core.SeriesReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reports := make([]*core.SeriesReport, len(requests))
	jobs := make(chan pullJob)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	setErr := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			if ctx.Err() != nil {
				return
			}
			report, err := service.FetchSeries(ctx, job.req, opts)
			if err != nil {
				setErr(fmt.Errorf("%s/%s: %w", job.req.Source, job.req.SeriesID, err))
				return
			}
			reports[job.index] = report
		}
	}

	if concurrency > len(requests) {
		concurrency = len(requests)
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, req := range requests {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- pullJob{index: i, req: req}:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return reports, nil
}

func readPullManifest(path string) ([]core.SeriesRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest pullManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	requests := make([]core.SeriesRequest, 0, len(manifest.Series))
	for i, entry := range manifest.Series {
		req := core.SeriesRequest{
			Source:    core.Source(entry.Source),
			SeriesID:  entry.ID,
			Geography: entry.Geography,
			StartDate: entry.Start,
			EndDate:   entry.End,
			Variant:   entry.Variant,
		}.Normalize()
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid series at index %d: %w", i, err)
		}
		requests = append(requests, req)
	}

	return requests, nil
}

func writePullReports(dir string, format output.Format, reports []*core.SeriesReport) error {
	dir, err := ensureOutDir(dir)
	if err != nil {
		return err
	}

	ext := outputExtension(format)
	for _, report := range reports {
		if report == nil {
			continue
		}
		rendered, err := output.NewFormatter(format).FormatSeries(report)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s.%s.%s", report.Provenance.Source, sanitizeFilename(report.Provenance.SeriesID), ext)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(rendered+"\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func logPullThroughput(reports []*core.SeriesReport, startedAt time.Time) {
	total := 0
	fromCache := 0
	for _, report := range reports {
		if report == nil {
			continue
		}
		total++
		if report.Provenance.FromCache {
			fromCache++
		}
	}
	elapsed := time.Since(startedAt)
	perSecond := 0.0
	if elapsed > 0 {
		perSecond = float64(total) / elapsed.Seconds()
	}
	observability.CLILogger.Info(
		"Pull complete",
		zap.Int("series", total),
		zap.Int("from_cache", fromCache),
		zap.Duration("elapsed", elapsed),
		zap.Float64("series_per_second", perSecond),
	)
}
