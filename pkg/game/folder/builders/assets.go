package builders

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/manifests"
	"limeal.fr/mcboot/pkg/jsonscan"
	"limeal.fr/mcboot/pkg/utils"
)

const (
	DefaultResourcesBaseURL = "https://resources.download.minecraft.net/"
	// LegacyIndexURLFormat is tried when a descriptor has no asset index locator.
	LegacyIndexURLFormat = "https://launchermeta.mojang.com/v1/packages/%s/%s.json"
)

const assetProgressEvery = 100

type AssetBuilder struct {
	Installation     *folder.Installation
	Fetcher          BinaryFetcher
	Workers          int
	ResourcesBaseURL string
	// Status receives "done/total" style updates while objects are fetched.
	Status func(done, total int)
}

func NewAssetBuilder(g *folder.Installation, f BinaryFetcher, workers int, resourcesBase string) *AssetBuilder {
	if resourcesBase == "" {
		resourcesBase = DefaultResourcesBaseURL
	}
	return &AssetBuilder{Installation: g, Fetcher: f, Workers: workers, ResourcesBaseURL: resourcesBase}
}

// Sync makes sure the index of group is on disk, then fetches every object it
// lists that is missing. A missing index is not fatal: Sync logs it and
// returns an empty report.
func (a *AssetBuilder) Sync(ctx context.Context, group, indexURL string, pr *utils.ProgressRange) (SyncReport, error) {
	indexPath := a.Installation.AssetIndex(group)
	if !a.ensureIndex(ctx, group, indexURL, indexPath) {
		logger.Warn("asset index unavailable, skipping assets", utils.VersionKey, group)
		return SyncReport{}, ctx.Err()
	}

	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return SyncReport{}, fmt.Errorf("failed to read asset index %s: %w", indexPath, err)
	}

	hashes := AssetHashes(string(raw))
	jobs := make([]job, 0, len(hashes))
	for _, h := range hashes {
		jobs = append(jobs, job{
			url:  utils.JoinURL(a.ResourcesBaseURL, h[:2]+"/"+h),
			dest: a.Installation.AssetObject(h),
		})
	}

	t := newTracker(pr, len(jobs), assetProgressEvery)
	t.onStep = a.Status
	report, err := runJobs(ctx, a.Fetcher, jobs, a.Workers, t)
	logger.Info("assets synchronized", utils.VersionKey, group,
		utils.TotalKey, report.Total, "fetched", report.Fetched, "skipped", report.Skipped, "failed", report.Failed)
	return report, err
}

func (a *AssetBuilder) ensureIndex(ctx context.Context, group, indexURL, dest string) bool {
	if utils.FileExists(dest) {
		return true
	}
	if indexURL != "" && a.Fetcher.FetchBinaryQuiet(ctx, indexURL, dest) {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	return a.Fetcher.FetchBinaryQuiet(ctx, fmt.Sprintf(LegacyIndexURLFormat, group, group), dest)
}

// AssetHashes lists the distinct object hashes of an asset index, in a stable
// order. Values that are not lowercase SHA-1 hex strings are dropped.
func AssetHashes(index string) []string {
	var candidates []string

	var m manifests.AssetsManifest
	if err := json.Unmarshal([]byte(index), &m); err == nil && len(m.Objects) > 0 {
		names := make([]string, 0, len(m.Objects))
		for name := range m.Objects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			candidates = append(candidates, m.Objects[name].Hash)
		}
	} else {
		candidates = jsonscan.FindAllStrings(index, "hash")
	}

	seen := make(map[string]struct{}, len(candidates))
	hashes := make([]string, 0, len(candidates))
	for _, h := range candidates {
		if !utils.IsSHA1Hex(h) {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}
