package builders

import (
	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

type NativesBuilder struct {
	Installation *folder.Installation
}

func NewNativesBuilder(g *folder.Installation) *NativesBuilder {
	return &NativesBuilder{Installation: g}
}

// Archive returns the local archive holding the native libraries of d, if
// d has one.
func (b *NativesBuilder) Archive(d version.Dependency) (string, bool) {
	switch {
	case d.HasNative && d.NativePath != "":
		return b.Installation.LibraryPath(d.NativePath), true
	case d.IsNativeMarked():
		return b.Installation.LibraryPath(d.ArtifactPath), true
	}
	return "", false
}

// Extract unpacks the shared libraries of every native archive present on
// disk into the natives directory of versionID. A broken archive is logged
// and does not stop the others.
func (b *NativesBuilder) Extract(versionID string, deps []version.Dependency) int {
	dest := b.Installation.NativesDir(versionID)
	extracted := 0
	for _, d := range deps {
		archive, ok := b.Archive(d)
		if !ok || !utils.FileExists(archive) {
			continue
		}
		n, err := utils.ExtractNatives(archive, dest)
		extracted += n
		if err != nil {
			logger.Warn("failed to extract natives", utils.PathKey, archive, utils.ErrorKey, err)
		}
	}
	logger.Info("natives extracted", utils.VersionKey, versionID, utils.CountKey, extracted)
	return extracted
}
