package builders

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

// fakeFetcher serves bodies from memory and records every requested URL.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func newFakeFetcher(bodies map[string][]byte) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) FetchBinaryQuiet(_ context.Context, url, dest string) bool {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := f.bodies[url]
	f.mu.Unlock()
	if !ok {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false
	}
	return os.WriteFile(dest, body, 0o644) == nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func openInstallation(t *testing.T) *folder.Installation {
	t.Helper()
	g, err := folder.Open(t.TempDir())
	require.NoError(t, err)
	return g
}

func recordProgress(low, high int) (*utils.ProgressRange, *[]int) {
	var (
		mu   sync.Mutex
		seen []int
	)
	return &utils.ProgressRange{Low: low, High: high, Report: func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}}, &seen
}

func assertMonotonic(t *testing.T, seen []int, low, high int) {
	t.Helper()
	for i, p := range seen {
		assert.GreaterOrEqual(t, p, low)
		assert.LessOrEqual(t, p, high)
		if i > 0 {
			assert.Greater(t, p, seen[i-1])
		}
	}
}

func TestLibrariesDownload(t *testing.T) {
	g := openInstallation(t)
	deps := []version.Dependency{
		{Coordinate: "a:b:1", ArtifactPath: "a/b/1/b-1.jar", ArtifactURL: "https://libs/a/b/1/b-1.jar"},
		{
			Coordinate: "org.lwjgl:lwjgl:3", ArtifactPath: "org/lwjgl/lwjgl/3/lwjgl-3.jar", ArtifactURL: "https://libs/lwjgl.jar",
			HasNative: true, NativePath: "org/lwjgl/lwjgl/3/lwjgl-3-natives-linux.jar", NativeURL: "https://libs/lwjgl-natives.jar",
		},
		{Coordinate: "c:d:2", ArtifactPath: "c/d/2/d-2.jar", ArtifactURL: "https://libs/missing.jar"},
		{Coordinate: "e:f:3"},
	}
	f := newFakeFetcher(map[string][]byte{
		"https://libs/a/b/1/b-1.jar":     []byte("b"),
		"https://libs/lwjgl.jar":         []byte("lwjgl"),
		"https://libs/lwjgl-natives.jar": []byte("natives"),
	})

	pr, seen := recordProgress(30, 50)
	report, err := NewLibrariesBuilder(g, f, 2).Download(context.Background(), deps, pr)
	require.NoError(t, err)

	assert.Equal(t, SyncReport{Total: 4, Fetched: 3, Failed: 1}, report)
	assert.FileExists(t, g.LibraryPath("a/b/1/b-1.jar"))
	assert.FileExists(t, g.LibraryPath("org/lwjgl/lwjgl/3/lwjgl-3-natives-linux.jar"))
	assert.NoFileExists(t, g.LibraryPath("c/d/2/d-2.jar"))

	require.NotEmpty(t, *seen)
	assertMonotonic(t, *seen, 30, 50)
	assert.Equal(t, 50, (*seen)[len(*seen)-1])
}

func TestLibrariesDownloadSkipsPresentFiles(t *testing.T) {
	g := openInstallation(t)
	deps := []version.Dependency{
		{Coordinate: "a:b:1", ArtifactPath: "a/b/1/b-1.jar", ArtifactURL: "https://libs/b.jar"},
	}
	f := newFakeFetcher(map[string][]byte{"https://libs/b.jar": []byte("b")})
	b := NewLibrariesBuilder(g, f, 0)

	_, err := b.Download(context.Background(), deps, nil)
	require.NoError(t, err)
	report, err := b.Download(context.Background(), deps, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.count())
	assert.Equal(t, SyncReport{Total: 1, Skipped: 1}, report)
}

func TestLibrariesDownloadCancelled(t *testing.T) {
	g := openInstallation(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deps := []version.Dependency{{Coordinate: "a:b:1", ArtifactPath: "a/b/1/b-1.jar", ArtifactURL: "https://libs/b.jar"}}
	f := newFakeFetcher(nil)
	_, err := NewLibrariesBuilder(g, f, 1).Download(ctx, deps, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.count())
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestNativesExtract(t *testing.T) {
	g := openInstallation(t)
	deps := []version.Dependency{
		// classifier archive
		{Coordinate: "org.lwjgl:lwjgl:3", ArtifactPath: "lwjgl.jar", HasNative: true, NativePath: "lwjgl-natives.jar"},
		// the artifact itself is the native archive
		{Coordinate: "org.lwjgl:lwjgl:3:natives-linux", ArtifactPath: "lwjgl-glfw-natives.jar"},
		// not on disk
		{Coordinate: "x:natives:1", ArtifactPath: "absent.jar"},
		// broken archive is logged and skipped
		{Coordinate: "y:y-natives:1", ArtifactPath: "broken.jar"},
		// plain library
		{Coordinate: "a:b:1", ArtifactPath: "b.jar"},
	}
	writeZip(t, g.LibraryPath("lwjgl-natives.jar"), map[string]string{
		"liblwjgl.so":       "so",
		"META-INF/x.so":     "skip",
		"linux/x64/libo.so": "so",
	})
	writeZip(t, g.LibraryPath("lwjgl-glfw-natives.jar"), map[string]string{"libglfw.so": "so", "readme.txt": "txt"})
	writeZip(t, g.LibraryPath("b.jar"), map[string]string{"libshould-not.so": "so"})
	require.NoError(t, os.WriteFile(g.LibraryPath("broken.jar"), []byte("not a zip"), 0o644))

	n := NewNativesBuilder(g).Extract("1.20.4", deps)
	assert.Equal(t, 3, n)

	dir := g.NativesDir("1.20.4")
	assert.FileExists(t, filepath.Join(dir, "liblwjgl.so"))
	assert.FileExists(t, filepath.Join(dir, "libo.so"))
	assert.FileExists(t, filepath.Join(dir, "libglfw.so"))
	assert.NoFileExists(t, filepath.Join(dir, "libshould-not.so"))
	assert.NoFileExists(t, filepath.Join(dir, "x.so"))
}

func hashOf(i int) string {
	return fmt.Sprintf("%040x", i+1)
}

func TestAssetHashes(t *testing.T) {
	h1, h2 := hashOf(1), hashOf(2)
	index := fmt.Sprintf(`{"objects":{"b/sound.ogg":{"hash":%q,"size":1},"a/icon.png":{"hash":%q,"size":2},"c/dup":{"hash":%q,"size":2},"bad":{"hash":"XYZ","size":0}}}`, h2, h1, h1)
	assert.Equal(t, []string{h1, h2}, AssetHashes(index))
}

func TestAssetHashesLenientFallback(t *testing.T) {
	h1, h2 := hashOf(1), hashOf(2)
	index := fmt.Sprintf(`{"objects":{"a":{"hash":%q},"b":{"hash":%q},"c":{"hash":"%s"}`, h1, h2, strings.ToUpper(hashOf(3)))
	assert.Equal(t, []string{h1, h2}, AssetHashes(index))
}

func TestAssetSync(t *testing.T) {
	g := openInstallation(t)

	const count = 250
	objects := make([]string, 0, count)
	bodies := map[string][]byte{}
	for i := 0; i < count; i++ {
		h := hashOf(i)
		objects = append(objects, fmt.Sprintf(`"o%03d":{"hash":%q,"size":1}`, i, h))
		bodies["https://res/"+h[:2]+"/"+h] = []byte("x")
	}
	index := `{"objects":{` + strings.Join(objects, ",") + `}}`
	bodies["https://meta/12.json"] = []byte(index)

	f := newFakeFetcher(bodies)
	b := NewAssetBuilder(g, f, 4, "https://res")
	var steps []int
	b.Status = func(done, total int) { steps = append(steps, done) }

	pr, seen := recordProgress(60, 80)
	report, err := b.Sync(context.Background(), "12", "https://meta/12.json", pr)
	require.NoError(t, err)

	assert.Equal(t, SyncReport{Total: count, Fetched: count}, report)
	assert.FileExists(t, g.AssetIndex("12"))
	h := hashOf(7)
	assert.FileExists(t, filepath.Join(g.Path, "assets", filepath.FromSlash(folder.AssetObjectPath(h))))

	assert.Equal(t, []int{100, 200, 250}, steps)
	assert.Equal(t, []int{68, 76, 80}, *seen)

	// a second run finds everything on disk
	before := f.count()
	report, err = b.Sync(context.Background(), "12", "https://meta/12.json", nil)
	require.NoError(t, err)
	assert.Equal(t, before, f.count())
	assert.Equal(t, count, report.Skipped)
}

func TestAssetSyncFallsBackToLegacyIndex(t *testing.T) {
	g := openInstallation(t)
	h := hashOf(0)
	legacy := fmt.Sprintf(LegacyIndexURLFormat, "legacy", "legacy")
	f := newFakeFetcher(map[string][]byte{
		legacy: []byte(fmt.Sprintf(`{"objects":{"a":{"hash":%q,"size":1}}}`, h)),
	})
	f.bodies[DefaultResourcesBaseURL+h[:2]+"/"+h] = []byte("x")

	report, err := NewAssetBuilder(g, f, 1, "").Sync(context.Background(), "legacy", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, legacy, f.calls[0])
}

func TestAssetSyncWithoutIndex(t *testing.T) {
	g := openInstallation(t)
	f := newFakeFetcher(nil)
	report, err := NewAssetBuilder(g, f, 1, "").Sync(context.Background(), "12", "https://meta/12.json", nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Equal(t, 2, f.count())
}
