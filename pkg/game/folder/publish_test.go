package folder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limeal.fr/mcboot/pkg/connectors"
	"limeal.fr/mcboot/pkg/game/manifests"
)

const versionDoc = `{
  "id": "1.20.4", "type": "release", "mainClass": "M", "assets": "12",
  "assetIndex": {"id": "12", "url": "https://meta/12.json"},
  "downloads": {"client": {"url": "https://dl/client.jar"}},
  "libraries": [
    {"name": "a:b:1", "downloads": {"artifact": {"path": "a/b/1/b-1.jar", "url": "https://libs/b.jar"},
      "classifiers": {"natives-linux": {"path": "a/b/1/b-1-natives-linux.jar", "url": "https://libs/n.jar"}}}},
    {"name": "c:d:2"}
  ]
}`

func TestRewriteVersionDocument(t *testing.T) {
	out, typ, err := RewriteVersionDocument([]byte(versionDoc), "1.20.4", "file:///mirror/")
	require.NoError(t, err)
	assert.Equal(t, "release", typ)

	var m manifests.VVersionManifest
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "file:///mirror/versions/1.20.4/1.20.4.jar", m.Downloads["client"].URL)
	assert.Equal(t, "file:///mirror/assets/indexes/12.json", m.AssetIndex.URL)
	assert.Equal(t, "file:///mirror/libraries/a/b/1/b-1.jar", m.Libraries[0].Downloads.Artifact.URL)
	assert.Equal(t, "file:///mirror/libraries/a/b/1/b-1-natives-linux.jar", m.Libraries[0].Downloads.Classifiers["natives-linux"].URL)
	assert.Equal(t, "file:///mirror/libraries/", m.Libraries[1].URL)
	assert.Equal(t, "M", m.MainClass)
}

func TestPublish(t *testing.T) {
	g, err := Open(t.TempDir())
	require.NoError(t, err)

	write := func(p, body string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write(g.VersionDocument("1.20.4"), versionDoc)
	write(g.ClientJar("1.20.4"), "client")
	write(g.LibraryPath("a/b/1/b-1.jar"), "lib")
	write(g.LibraryPath("a/b/1/b-1.jar.123.part"), "partial")
	write(g.AssetObject("bdf48ef6b5d0d23bbb02e17d04865216179f510a"), "asset")
	write(filepath.Join(g.NativesDir("1.20.4"), "liblwjgl.so"), "native")

	mirrorDir := t.TempDir()
	mirrorURI := "file://" + filepath.ToSlash(mirrorDir)
	c := connectors.FindConnectorFromURI(mirrorURI)
	require.NotNil(t, c)

	var calls int
	report, err := g.Publish(c, mirrorURI, func(section string, current, total int, description string) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 4, report.Uploaded)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, []string{"1.20.4"}, report.Versions)
	assert.Equal(t, 4, calls)

	assert.FileExists(t, filepath.Join(mirrorDir, "libraries", "a", "b", "1", "b-1.jar"))
	assert.NoFileExists(t, filepath.Join(mirrorDir, "libraries", "a", "b", "1", "b-1.jar.123.part"))
	assert.NoDirExists(t, filepath.Join(mirrorDir, "natives"))

	raw, err := os.ReadFile(filepath.Join(mirrorDir, MirrorCatalogFile))
	require.NoError(t, err)
	var cat manifests.MCManifest
	require.NoError(t, json.Unmarshal(raw, &cat))
	require.Len(t, cat.Versions, 1)
	assert.Equal(t, mirrorURI+"/versions/1.20.4/1.20.4.json", cat.Versions[0].URL)

	report, err = g.Publish(c, mirrorURI, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 1, report.Uploaded, "version documents are always rewritten")
}
