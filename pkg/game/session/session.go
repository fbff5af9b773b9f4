// Package session runs the launch pipeline behind a small event-stream API:
// catalog, version document, client jar, libraries, natives, assets, options
// and finally the game process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/folder/builders"
	"limeal.fr/mcboot/pkg/game/launcher"
	"limeal.fr/mcboot/pkg/game/profile"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

// MinClientJarSize is the size under which a cached client jar is fetched again.
const MinClientJarSize = 1_000_000

// Progress checkpoints of a launch.
const (
	progressDescriptor = 10
	progressClient     = 30
	progressLibraries  = 50
	progressNatives    = 60
	progressAssets     = 80
	progressOptions    = 85
	progressLaunch     = 100
)

// Fetcher is the content fetcher used by a launch.
type Fetcher interface {
	catalog.TextFetcher
	builders.BinaryFetcher
	FetchBinary(ctx context.Context, url, dest string, pr *utils.ProgressRange) error
}

type Config struct {
	Installation   *folder.Installation
	Fetcher        Fetcher
	ManifestURL    string
	VersionOptions version.Options
	Composer       *launcher.Composer
	Locator        *launcher.RuntimeLocator
	Workers        int
	// ResourcesBaseURL serves asset objects, empty means the public one.
	ResourcesBaseURL  string
	Tuning            folder.Tuning
	MinUsernameLength int
	MinMemoryMB       int
}

type LaunchRequest struct {
	VersionID string
	Username  string
	MemoryMB  int
}

type Service struct {
	cfg      Config
	catalogs *catalog.Resolver
	versions *version.Resolver

	catalogMu sync.Mutex
	catalog   *catalog.Catalog

	runtimesOnce sync.Once
	runtimes     *launcher.Runtimes
}

type Option func(*Service)

// WithRuntimes installs a runtime map instead of discovering one.
func WithRuntimes(rts *launcher.Runtimes) Option {
	return func(s *Service) {
		s.runtimesOnce.Do(func() { s.runtimes = rts })
	}
}

// WithCatalog installs an already loaded catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Installation == nil {
		return nil, errors.New("session needs an installation")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("session needs a fetcher")
	}
	if cfg.Composer == nil {
		cfg.Composer = launcher.NewComposer(cfg.VersionOptions.Env)
	}
	if cfg.Locator == nil {
		cfg.Locator = launcher.NewRuntimeLocator()
	}

	s := &Service{
		cfg:      cfg,
		catalogs: catalog.NewResolver(cfg.Fetcher, cfg.ManifestURL),
		versions: version.NewResolver(cfg.Fetcher, cfg.VersionOptions),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListVersions reloads the catalog and returns its versions in document order.
func (s *Service) ListVersions(ctx context.Context) ([]catalog.Summary, error) {
	c, err := s.catalogs.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.catalogMu.Lock()
	s.catalog = c
	s.catalogMu.Unlock()
	return c.Versions(), nil
}

// Catalog returns the last loaded catalog, loading it when there is none.
func (s *Service) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	s.catalogMu.Lock()
	c := s.catalog
	s.catalogMu.Unlock()
	if c != nil {
		return c, nil
	}
	if _, err := s.ListVersions(ctx); err != nil {
		return nil, err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	return s.catalog, nil
}

// Runtimes discovers installed runtimes on first use and returns the same map
// afterwards.
func (s *Service) Runtimes(ctx context.Context) *launcher.Runtimes {
	s.runtimesOnce.Do(func() {
		s.runtimes = s.cfg.Locator.Discover(ctx)
	})
	return s.runtimes
}

// Launch runs the pipeline for req on its own goroutine. The returned channel
// carries status, progress and log events and ends with exactly one
// EventDone, after which it is closed. Cancelling ctx aborts the pipeline at
// the next stage boundary; it does not stop a game that is already running.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		e := newEmitter(ch)
		e.done(s.run(ctx, req, e))
	}()
	return ch
}

func (s *Service) run(ctx context.Context, req LaunchRequest, e *emitter) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("launch aborted: %v", r)
			logger.Error("launch panicked", utils.VersionKey, req.VersionID, utils.ErrorKey, err)
			res = s.fail(e, err)
		}
	}()

	plan, err := s.prepare(ctx, req, e)
	if err == nil {
		err = checkpoint(ctx)
	}
	if err != nil {
		return s.fail(e, err)
	}

	e.status("Launching game...")
	e.progress(progressLaunch)
	e.log("Command: " + plan.CommandLine())

	proc, err := launcher.Start(plan, e.log)
	if err != nil {
		return s.fail(e, err)
	}
	e.log(fmt.Sprintf("Game started, pid %d", proc.Pid()))
	e.status("Game is running")

	code, err := proc.Wait()
	if err != nil {
		return s.fail(e, err)
	}
	e.log(fmt.Sprintf("Exit code: %d", code))
	if code != 0 {
		e.status(fmt.Sprintf("Crashed (code %d)", code))
		return &Result{
			Outcome:  OutcomeError,
			Kind:     KindCrashed,
			Err:      fmt.Errorf("game exited with code %d", code),
			ExitCode: code,
			Plan:     plan,
		}
	}
	e.status("Game closed")
	return &Result{Outcome: OutcomeSuccess, Plan: plan}
}

func (s *Service) fail(e *emitter, err error) *Result {
	kind := Classify(err)
	if kind == KindCancelled {
		e.status("Cancelled")
		e.log("Cancelled by user")
		return &Result{Outcome: OutcomeCancelled, Kind: kind, Err: ErrCancelled}
	}
	e.status(shortCause(kind, err))
	e.log("ERROR: " + err.Error())
	return &Result{Outcome: OutcomeError, Kind: kind, Err: err}
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// prepare runs every stage before the game process and returns its plan.
func (s *Service) prepare(ctx context.Context, req LaunchRequest, e *emitter) (*launcher.Plan, error) {
	start := time.Now()
	g := s.cfg.Installation

	prof, err := profile.NewOfflineProfile(req.Username, profile.Options{
		MinUsernameLength: s.cfg.MinUsernameLength,
		MemoryMB:          req.MemoryMB,
		MinMemoryMB:       s.cfg.MinMemoryMB,
	})
	if err != nil {
		return nil, err
	}

	// runtime discovery runs while the game files are fetched
	runtimes := make(chan *launcher.Runtimes, 1)
	go func() { runtimes <- s.Runtimes(context.WithoutCancel(ctx)) }()

	// descriptor
	e.status("Loading version info...")
	e.progress(0)
	c, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	summary, ok := c.Get(req.VersionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, req.VersionID)
	}
	desc, raw, err := s.versions.ResolveDocument(ctx, summary)
	if err != nil {
		return nil, err
	}
	if err := writeFile(g.VersionDocument(desc.ID), []byte(raw)); err != nil {
		logger.Warn("failed to save version document", utils.VersionKey, desc.ID, utils.ErrorKey, err)
	}
	e.log(fmt.Sprintf("Version %s: %d libraries, java %d required", desc.ID, len(desc.Dependencies), desc.RequiredRuntime))
	e.progress(progressDescriptor)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// client jar
	e.status("Downloading client...")
	if err := s.syncClient(ctx, desc, e); err != nil {
		return nil, err
	}
	e.progress(progressClient)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// libraries
	e.status("Downloading libraries...")
	libs := builders.NewLibrariesBuilder(g, s.cfg.Fetcher, s.cfg.Workers)
	report, err := libs.Download(ctx, desc.Dependencies, &utils.ProgressRange{Low: progressClient, High: progressLibraries, Report: e.progress})
	if err != nil {
		return nil, err
	}
	if report.Failed > 0 {
		e.log(fmt.Sprintf("%d of %d library downloads failed", report.Failed, report.Total))
	}
	e.progress(progressLibraries)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// natives
	e.status("Extracting natives...")
	n := builders.NewNativesBuilder(g).Extract(desc.ID, desc.Dependencies)
	e.log(fmt.Sprintf("Extracted %d native files", n))
	e.progress(progressNatives)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// assets
	e.status("Downloading assets...")
	assets := builders.NewAssetBuilder(g, s.cfg.Fetcher, s.cfg.Workers, s.cfg.ResourcesBaseURL)
	assets.Status = func(done, total int) {
		e.status(fmt.Sprintf("Assets... %d/%d", done, total))
	}
	report, err = assets.Sync(ctx, desc.AssetGroup, desc.AssetIndexURL, &utils.ProgressRange{Low: progressNatives, High: progressAssets, Report: e.progress})
	if err != nil {
		return nil, err
	}
	if report.Total == 0 {
		e.log("Warning: no asset index found")
	} else if report.Failed > 0 {
		e.log(fmt.Sprintf("%d of %d asset downloads failed", report.Failed, report.Total))
	}
	e.progress(progressAssets)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// options
	e.status("Writing options...")
	if err := g.ApplyTuning(s.cfg.Tuning); err != nil {
		logger.Warn("failed to tune options", utils.ErrorKey, err)
		e.log("Warning: " + err.Error())
	}
	e.progress(progressOptions)
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// runtime
	var rts *launcher.Runtimes
	select {
	case rts = <-runtimes:
	case <-ctx.Done():
		return nil, ErrCancelled
	}
	rt, err := s.selectRuntime(ctx, rts, desc.RequiredRuntime)
	if err != nil {
		return nil, err
	}
	e.log(fmt.Sprintf("Using java %d at %s", rt.Major, rt.Path))

	plan, err := s.cfg.Composer.BuildPlan(launcher.LaunchInput{
		Descriptor:   desc,
		Installation: g,
		Profile:      prof,
		Runtime:      rt,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("launch prepared", utils.VersionKey, desc.ID, utils.RuntimeKey, rt.Major, utils.DurationKey, time.Since(start))
	return plan, nil
}

// syncClient fetches the client jar unless a large enough copy is present,
// then refreshes the legacy copy in bin/.
func (s *Service) syncClient(ctx context.Context, desc *version.Descriptor, e *emitter) error {
	g := s.cfg.Installation
	jar := g.ClientJar(desc.ID)
	if utils.FileSize(jar) < MinClientJarSize {
		pr := &utils.ProgressRange{Low: progressDescriptor, High: progressClient, Report: e.progress}
		if err := s.cfg.Fetcher.FetchBinary(ctx, desc.ClientURL, jar, pr); err != nil {
			return fmt.Errorf("failed to download client %s: %w", desc.ID, err)
		}
	}
	if err := utils.CopyFile(jar, g.LegacyClientJar()); err != nil {
		logger.Warn("failed to copy legacy client jar", utils.PathKey, g.LegacyClientJar(), utils.ErrorKey, err)
	}
	return nil
}

// selectRuntime applies the selection policy and checks the chosen runtime by
// querying it again.
func (s *Service) selectRuntime(ctx context.Context, rts *launcher.Runtimes, required int) (launcher.Runtime, error) {
	rt, ok := rts.FindRuntimeForRequirement(required)
	if !ok {
		return launcher.Runtime{}, &launcher.RuntimeUnavailableError{Required: required, Found: rts.Highest()}
	}

	query := s.cfg.Locator.Query
	if query == nil {
		query = launcher.QueryVersion
	}
	qctx, cancel := context.WithTimeout(ctx, launcher.DefaultQueryTimeout)
	defer cancel()
	if v, err := query(qctx, rt.Path); err == nil {
		if m := launcher.MajorOf(v); m > 0 {
			rt.Major, rt.Version = m, v
		}
	} else {
		logger.Warn("failed to query runtime", utils.PathKey, rt.Path, utils.ErrorKey, err)
	}

	if rt.Major < required {
		return launcher.Runtime{}, &launcher.RuntimeUnavailableError{Required: required, Found: rt.Major}
	}
	return rt, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
