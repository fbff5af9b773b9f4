package folder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

const DefaultFolderName = "minecraft"

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

type Directory string

const (
	DirectoryVersions  Directory = "versions"
	DirectoryLibraries Directory = "libraries"
	DirectoryNatives   Directory = "natives"
	DirectoryAssets    Directory = "assets"
	DirectoryBin       Directory = "bin"
)

const (
	OptionsFile     = "options.txt"
	LegacyClientJar = "minecraft.jar"
)

// GetGameFolderPathForFolder returns the per-user location of an installation
// named folderName.
func GetGameFolderPathForFolder(folderName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", folderName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "."+folderName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "."+folderName), nil
	}
	return filepath.Join(home, "."+folderName), nil
}

// Installation is the on-disk game directory every launch reads from and
// writes into.
type Installation struct {
	Path string
}

// Open prepares the directory tree of an installation rooted at path.
func Open(path string) (*Installation, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	g := &Installation{Path: abs}
	for _, dir := range []string{
		g.GetDirectory(DirectoryVersions),
		g.GetDirectory(DirectoryLibraries),
		g.GetDirectory(DirectoryNatives),
		filepath.Join(g.GetDirectory(DirectoryAssets), "indexes"),
		filepath.Join(g.GetDirectory(DirectoryAssets), "objects"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return g, nil
}

func (g *Installation) GetPath() string {
	return g.Path
}

func (g *Installation) GetDirectory(directory Directory) string {
	return filepath.Join(g.Path, string(directory))
}

func (g *Installation) VersionDir(id string) string {
	return filepath.Join(g.GetDirectory(DirectoryVersions), id)
}

func (g *Installation) ClientJar(id string) string {
	return filepath.Join(g.VersionDir(id), id+".jar")
}

// VersionDocument is where the detail document of id is kept.
func (g *Installation) VersionDocument(id string) string {
	return filepath.Join(g.VersionDir(id), id+".json")
}

func (g *Installation) LegacyClientJar() string {
	return filepath.Join(g.GetDirectory(DirectoryBin), LegacyClientJar)
}

// LibraryPath maps a maven relative path into the libraries tree.
func (g *Installation) LibraryPath(rel string) string {
	return filepath.Join(g.GetDirectory(DirectoryLibraries), filepath.FromSlash(rel))
}

func (g *Installation) NativesDir(id string) string {
	return filepath.Join(g.GetDirectory(DirectoryNatives), id)
}

func (g *Installation) AssetIndex(group string) string {
	return filepath.Join(g.GetDirectory(DirectoryAssets), "indexes", group+".json")
}

func (g *Installation) AssetObject(hash string) string {
	return filepath.Join(g.GetDirectory(DirectoryAssets), filepath.FromSlash(AssetObjectPath(hash)))
}

func (g *Installation) OptionsPath() string {
	return filepath.Join(g.Path, OptionsFile)
}

// AssetObjectPath is the content addressed location of hash relative to the
// assets directory.
func AssetObjectPath(hash string) string {
	if len(hash) < 2 {
		return "objects/" + hash
	}
	return "objects/" + hash[:2] + "/" + hash
}
