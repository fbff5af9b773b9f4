package builders

import (
	"context"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

type LibrariesBuilder struct {
	Installation *folder.Installation
	Fetcher      BinaryFetcher
	Workers      int
}

func NewLibrariesBuilder(g *folder.Installation, f BinaryFetcher, workers int) *LibrariesBuilder {
	return &LibrariesBuilder{Installation: g, Fetcher: f, Workers: workers}
}

// Download fetches the artifact and native archive of every dependency that
// is not on disk yet. A library that fails to download is logged and skipped.
func (b *LibrariesBuilder) Download(ctx context.Context, deps []version.Dependency, pr *utils.ProgressRange) (SyncReport, error) {
	var jobs []job
	for _, d := range deps {
		if d.ArtifactPath != "" && d.ArtifactURL != "" {
			jobs = append(jobs, job{url: d.ArtifactURL, dest: b.Installation.LibraryPath(d.ArtifactPath)})
		}
		if d.HasNative && d.NativeURL != "" {
			jobs = append(jobs, job{url: d.NativeURL, dest: b.Installation.LibraryPath(d.NativePath)})
		}
	}

	report, err := runJobs(ctx, b.Fetcher, jobs, b.Workers, newTracker(pr, len(jobs), 1))
	logger.Info("libraries synchronized",
		utils.TotalKey, report.Total, "fetched", report.Fetched, "skipped", report.Skipped, "failed", report.Failed)
	return report, err
}
