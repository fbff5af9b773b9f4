package folder

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"limeal.fr/mcboot/pkg/connectors"
	"limeal.fr/mcboot/pkg/game/manifests"
	"limeal.fr/mcboot/pkg/utils"
)

// MirrorCatalogFile is the catalog written at the root of a published mirror.
const MirrorCatalogFile = "version_manifest_v2.json"

type PublishReport struct {
	Uploaded int
	Skipped  int
	Versions []string
}

// Publish copies the versions, libraries and assets trees of the installation
// to c. Files the mirror already holds with the same SHA-1 are skipped.
// Version documents are rewritten so every download points below mirrorURI,
// and a catalog of the published versions is written at the mirror root.
func (g *Installation) Publish(c connectors.Connector, mirrorURI string, pcb utils.ProgressCallback) (*PublishReport, error) {
	files, err := g.publishableFiles()
	if err != nil {
		return nil, err
	}
	logger.Info("publishing installation", utils.PathKey, g.Path, utils.TotalKey, len(files))

	report := &PublishReport{}
	var catalog manifests.MCManifest

	for i, rel := range files {
		local := filepath.Join(g.Path, filepath.FromSlash(rel))

		if id, ok := versionDocumentID(rel); ok {
			info, err := g.publishVersionDocument(c, mirrorURI, id, local, rel)
			if err != nil {
				return report, err
			}
			catalog.Versions = append(catalog.Versions, info)
			report.Versions = append(report.Versions, id)
			report.Uploaded++
		} else if c.HasFileWithChecksum(rel, connectors.ChecksumTypeSHA1, utils.FileSHA1(local)) {
			report.Skipped++
		} else {
			if err := c.SendFile(rel, local); err != nil {
				return report, fmt.Errorf("failed to upload %s: %w", rel, err)
			}
			report.Uploaded++
		}

		if pcb != nil {
			pcb("Publishing", i+1, len(files), rel)
		}
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return report, fmt.Errorf("failed to encode mirror catalog: %w", err)
	}
	if err := c.SendFileFromBytes(MirrorCatalogFile, data); err != nil {
		return report, fmt.Errorf("failed to upload mirror catalog: %w", err)
	}
	return report, nil
}

func (g *Installation) publishableFiles() ([]string, error) {
	var files []string
	for _, dir := range []Directory{DirectoryVersions, DirectoryLibraries, DirectoryAssets} {
		root := g.GetDirectory(dir)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasSuffix(p, ".part") {
				return nil
			}
			rel, err := filepath.Rel(g.Path, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	return files, nil
}

// versionDocumentID matches versions/<id>/<id>.json.
func versionDocumentID(rel string) (string, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 || parts[0] != string(DirectoryVersions) {
		return "", false
	}
	return parts[1], parts[2] == parts[1]+".json"
}

func (g *Installation) publishVersionDocument(c connectors.Connector, mirrorURI, id, local, rel string) (manifests.VersionInfo, error) {
	raw, err := os.ReadFile(local)
	if err != nil {
		return manifests.VersionInfo{}, err
	}
	doc, typ, err := RewriteVersionDocument(raw, id, mirrorURI)
	if err != nil {
		return manifests.VersionInfo{}, fmt.Errorf("failed to rewrite %s: %w", rel, err)
	}
	if err := c.SendFileFromBytes(rel, doc); err != nil {
		return manifests.VersionInfo{}, fmt.Errorf("failed to upload %s: %w", rel, err)
	}
	return manifests.VersionInfo{
		ID:   id,
		Type: typ,
		URL:  utils.JoinURL(mirrorURI, rel),
		SHA1: utils.BytesSHA1(doc),
	}, nil
}

// RewriteVersionDocument points the client, asset index and library
// locators of a version document at the installation layout below base.
// Unknown fields are kept. It also returns the channel of the version.
func RewriteVersionDocument(raw []byte, id, base string) ([]byte, string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", err
	}

	if dl, ok := doc["downloads"].(map[string]any); ok {
		if client, ok := dl["client"].(map[string]any); ok {
			client["url"] = utils.JoinURL(base, path.Join("versions", id, id+".jar"))
		}
	}

	group, _ := doc["assets"].(string)
	if idx, ok := doc["assetIndex"].(map[string]any); ok {
		if group == "" {
			group, _ = idx["id"].(string)
		}
		if group != "" {
			idx["url"] = utils.JoinURL(base, path.Join("assets", "indexes", group+".json"))
		}
	}

	libraries := utils.JoinURL(base, "libraries/")
	if libs, ok := doc["libraries"].([]any); ok {
		for _, l := range libs {
			lib, ok := l.(map[string]any)
			if !ok {
				continue
			}
			dl, ok := lib["downloads"].(map[string]any)
			if !ok {
				lib["url"] = libraries
				continue
			}
			for key, v := range dl {
				switch {
				case key == "artifact" || strings.HasPrefix(key, "natives-"):
					rewriteArtifact(v, libraries)
				case key == "classifiers":
					if cls, ok := v.(map[string]any); ok {
						for _, a := range cls {
							rewriteArtifact(a, libraries)
						}
					}
				}
			}
		}
	}

	typ, _ := doc["type"].(string)
	out, err := json.MarshalIndent(doc, "", "  ")
	return out, typ, err
}

func rewriteArtifact(v any, libraries string) {
	a, ok := v.(map[string]any)
	if !ok {
		return
	}
	if p, ok := a["path"].(string); ok && p != "" {
		a["url"] = utils.JoinURL(libraries, p)
	}
}
