package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NativeExtensions are the shared library suffixes extracted from native archives.
var NativeExtensions = []string{".dll", ".so", ".dylib", ".jnilib"}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileSize returns -1 when path does not exist.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return out.Close()
}

// MavenPath turns group:artifact:version[:classifier] into the repository
// relative path group/as/dirs/artifact/version/artifact-version[-classifier].jar.
func MavenPath(coord string) (string, error) {
	parts := strings.Split(coord, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return "", fmt.Errorf("invalid maven coordinate %q (expected group:artifact:version[:classifier])", coord)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid maven coordinate %q", coord)
		}
	}

	group, artifact, version := parts[0], parts[1], parts[2]
	name := artifact + "-" + version
	if len(parts) == 4 {
		name += "-" + parts[3]
	}
	return path.Join(strings.ReplaceAll(group, ".", "/"), artifact, version, name+".jar"), nil
}

// MavenURL joins base and the MavenPath of coord.
func MavenURL(base, coord string) (string, error) {
	p, err := MavenPath(coord)
	if err != nil {
		return "", err
	}
	return JoinURL(base, p), nil
}

func JoinURL(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// ExtractNatives copies every shared library of the archive at zipPath into
// destDir, flattening directories. META-INF entries and files already present
// in destDir are skipped. It returns the number of files written.
func ExtractNatives(zipPath, destDir string) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	written := 0
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || strings.HasPrefix(entry.Name, "META-INF") {
			continue
		}
		if !isNativeLibrary(entry.Name) {
			continue
		}

		dest := filepath.Join(destDir, path.Base(entry.Name))
		if FileExists(dest) {
			continue
		}
		if err := extractEntry(entry, dest); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func isNativeLibrary(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range NativeExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func extractEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", entry.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return out.Close()
}
