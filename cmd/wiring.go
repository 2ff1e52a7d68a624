package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/seedwise/kindred/internal/config"
	"github.com/seedwise/kindred/internal/embedding"
	"github.com/seedwise/kindred/internal/engine"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/logger"
	"github.com/seedwise/kindred/internal/policy"
	"github.com/seedwise/kindred/internal/teams"
	"github.com/seedwise/kindred/internal/textnorm"
	"github.com/seedwise/kindred/internal/tracker"
	"github.com/seedwise/kindred/internal/vecindex"
)

// pipeline bundles a fully wired engine with the handles it must release.
type pipeline struct {
	Engine *engine.Engine

	embedCloser io.Closer
	cache       *embedding.Cache
	teamWatcher *teams.Watcher
	audit       *policy.AuditStore
}

// Close releases the embedding provider, cache, audit, and team watch handles.
func (p *pipeline) Close() {
	if p.teamWatcher != nil {
		p.teamWatcher.Stop()
	}
	if p.embedCloser != nil {
		_ = p.embedCloser.Close()
	}
	if p.cache != nil {
		_ = p.cache.Close()
	}
	if p.audit != nil {
		_ = p.audit.Close()
	}
}

// buildPipeline wires tracker, team map, admission policies, embedding stack,
// index store, fetcher, and engine from the loaded configuration. demo swaps
// the tracker for a seeded in-memory corpus and skips the embedding provider
// so every command works offline. watchTeams reloads the team map on file
// change for the lifetime of the pipeline; one-shot commands leave it off.
func buildPipeline(ctx context.Context, demo, watchTeams bool) (*pipeline, error) {
	client, err := buildTrackerClient(demo)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}

	var resolver fetcher.TeamResolver
	if demo {
		resolver = demoTeamsMap()
	} else {
		teamMap, src, err := loadTeams(watchTeams)
		if err != nil {
			return nil, err
		}
		resolver = teamMap
		if src != nil {
			resolver = src
			watcher, err := teams.NewWatcher(src, nil)
			if err == nil {
				err = watcher.Start()
			}
			if err != nil {
				// A dead watch still leaves the startup snapshot usable.
				LogError("watch teams file", err)
			} else {
				p.teamWatcher = watcher
			}
		}
	}

	admitter, err := p.buildAdmitter()
	if err != nil {
		p.Close()
		return nil, err
	}

	engineCfg := config.LoadEngineConfig()
	batcher, err := p.buildBatcher(ctx, engineCfg, demo)
	if err != nil {
		p.Close()
		return nil, err
	}

	store, err := vecindex.NewStore(config.GetIndexBasePath())
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open index store: %w", err)
	}

	fetchCfg := config.LoadFetcherConfig()
	if demo {
		// Slice spacing protects a real tracker; the in-memory corpus
		// needs no pacing.
		fetchCfg.SliceSpacing = 0
	}
	f := fetcher.New(fetcher.Options{
		Client:   client,
		Teams:    resolver,
		Project:  GetConfig().Tracker.Project,
		Config:   fetchCfg,
		Admitter: admitter,
	})

	normCfg := config.LoadNormalizerConfig()
	p.Engine = engine.New(engine.Options{
		Client:   client,
		Fetcher:  f,
		Embedder: batcher,
		Store:    store,
		Config:   engineCfg,
		Normalizer: textnorm.Options{
			MinLength:      normCfg.MinLength,
			MaxLength:      normCfg.MaxLength,
			RemoveHTML:     normCfg.RemoveHTML,
			RemoveMarkdown: normCfg.RemoveMarkdown,
		},
	})

	return p, nil
}

// buildTrackerClient returns the REST adapter, or the seeded in-memory
// corpus when demo is set.
func buildTrackerClient(demo bool) (tracker.Client, error) {
	if demo {
		return demoTrackerClient(), nil
	}

	cfg := GetConfig().Tracker
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker.baseUrl is not configured (set it in %s.yaml or KINDRED_TRACKER_BASEURL, or pass --demo)", configName)
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("KINDRED_TRACKER_TOKEN")
	}
	return tracker.NewRESTClient(tracker.RESTConfig{
		BaseURL: cfg.BaseURL,
		Project: cfg.Project,
		Token:   token,
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})
}

// loadTeams reads the team map file. A missing file is not an error; with no
// verified areas the fetcher then limits candidates to the seed itself. When
// watch is set and the file exists, the returned Source reloads the map on
// file change.
func loadTeams(watch bool) (*teams.Map, *teams.Source, error) {
	path := GetConfig().Project.TeamsFile
	if path == "" {
		return teams.New(nil), nil, nil
	}
	fs := afero.NewOsFs()
	if ok, _ := afero.Exists(fs, path); !ok {
		LogError(fmt.Sprintf("teams file %s not found, candidate retrieval is limited to the seed", path), nil)
		return teams.New(nil), nil, nil
	}
	if !watch {
		m, err := teams.Load(fs, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load teams file %s: %w", path, err)
		}
		return m, nil, nil
	}
	src, err := teams.NewSource(fs, path)
	if err != nil {
		return nil, nil, fmt.Errorf("load teams file %s: %w", path, err)
	}
	return src.Map(), src, nil
}

// loadTeamsMap reads the map once, for one-shot commands.
func loadTeamsMap() (*teams.Map, error) {
	m, _, err := loadTeams(false)
	return m, err
}

// policiesDir resolves the admission-policies directory, anchoring relative
// paths at the project root.
func policiesDir() string {
	dir := GetConfig().Project.PoliciesDir
	if dir == "" {
		dir = policy.DefaultPoliciesDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(GetConfig().Project.RootDir, dir)
	}
	return dir
}

// buildAdmitter compiles the candidate-admission policies when the policies
// directory exists. No directory means no admission filtering. Active
// policies also get an audit trail so a dropped candidate stays explainable.
func (p *pipeline) buildAdmitter() (fetcher.Admitter, error) {
	dir := policiesDir()
	loader := policy.NewOsLoader(dir)
	files, err := loader.ListFiles()
	if err != nil || len(files) == 0 {
		return nil, nil
	}

	audit, err := policy.OpenAuditStore(config.GetAuditDBPath())
	if err != nil {
		// Admission still works without the trail.
		LogError("open policy audit store", err)
		audit = nil
	}
	p.audit = audit

	eng, err := policy.NewEngine(policy.EngineConfig{PoliciesDir: dir, Audit: audit})
	if err != nil {
		return nil, fmt.Errorf("compile admission policies in %s: %w", dir, err)
	}
	requestID := uuid.New().String()
	eng.SetRequestID(requestID)
	logger.SetRequestID(requestID)
	LogError(fmt.Sprintf("admission policies active: %d file(s)", eng.PolicyCount()), nil)
	return eng, nil
}

// buildBatcher assembles the embedding stack: provider client, sqlite vector
// cache, and the batching wrapper. In demo mode, or when the configured
// provider has no credentials, the provider stays nil and the batcher serves
// deterministic hash vectors instead.
func (p *pipeline) buildBatcher(ctx context.Context, engineCfg config.EngineConfig, demo bool) (*embedding.Batcher, error) {
	loaded, err := embedding.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("embedding config: %w", err)
	}

	var provider einoembedding.Embedder
	if !demo {
		if loaded.APIKey == "" && (loaded.Provider == embedding.ProviderOpenAI || loaded.Provider == embedding.ProviderGemini) {
			LogError(fmt.Sprintf("no API key for embedding provider %s, using hash vectors", loaded.Provider), nil)
		} else {
			ce, err := embedding.NewCloseableEmbedder(ctx, loaded)
			if err != nil {
				// Provider construction failure is survivable as long as
				// hash fallback is allowed; the engine degrades per batch.
				if !engineCfg.AllowHashFallback {
					return nil, fmt.Errorf("create embedder: %w", err)
				}
				LogError("create embedder, falling back to hash vectors", err)
			} else {
				p.embedCloser = ce
				provider = ce
			}
		}
	}

	cachePath := config.GetEmbedCachePath()
	cache, err := embedding.OpenCache(cachePath)
	if err != nil {
		// Cache loss only costs re-embedding.
		LogError(fmt.Sprintf("open embedding cache %s", cachePath), err)
		cache = nil
	}
	p.cache = cache

	batchCfg := embedding.BatchConfig{
		Size:              engineCfg.BatchSize,
		Deadline:          engineCfg.BatchDeadline,
		AllowHashFallback: engineCfg.AllowHashFallback,
		Dimension:         GetConfig().Embedding.Dimension,
		Model:             loaded.Model,
	}
	if demo {
		// Hash vectors only; nothing to time out on.
		batchCfg.AllowHashFallback = true
	}
	return embedding.NewBatcher(provider, cache, batchCfg), nil
}
