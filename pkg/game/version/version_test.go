package version

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/manifests"
	"limeal.fr/mcboot/pkg/game/rules"
)

var linuxOpts = Options{Env: rules.EnvFor("linux", "amd64"), Policy: rules.PolicyStrict}

func TestParseMCMajor(t *testing.T) {
	tests := map[string]int{
		"1.21.1":    21,
		"1.20.4":    20,
		"1.8.9":     8,
		"1.17":      17,
		"24w10a":    0,
		"b1.7.3":    0,
		"1.":        0,
		"1.19-pre1": 19,
	}
	for id, want := range tests {
		assert.Equal(t, want, ParseMCMajor(id), id)
	}
}

func TestRequiredRuntimeForID(t *testing.T) {
	assert.Equal(t, 21, RequiredRuntimeForID("1.21.1"))
	assert.Equal(t, 17, RequiredRuntimeForID("1.20.4"))
	assert.Equal(t, 17, RequiredRuntimeForID("1.18"))
	assert.Equal(t, 16, RequiredRuntimeForID("1.17.1"))
	assert.Equal(t, 8, RequiredRuntimeForID("1.16.5"))
	assert.Equal(t, 8, RequiredRuntimeForID("1.8.9"))
	assert.Equal(t, 8, RequiredRuntimeForID("24w10a"))
}

const modernDoc = `{
  "id": "1.20.4",
  "type": "release",
  "mainClass": "net.minecraft.client.main.Main",
  "assets": "12",
  "assetIndex": {"id": "12", "url": "https://meta/12.json"},
  "javaVersion": {"component": "java-runtime-gamma", "majorVersion": 17},
  "downloads": {"client": {"url": "https://dl/client.jar", "size": 123}},
  "arguments": {"game": ["--username", "${auth_player_name}"], "jvm": []},
  "libraries": [
    {"name": "com.mojang:brigadier:1.2.9",
     "downloads": {"artifact": {"path": "com/mojang/brigadier/1.2.9/brigadier-1.2.9.jar", "url": "https://libs/brigadier.jar"}}},
    {"name": "org.lwjgl:lwjgl:3.3.2:natives-linux",
     "downloads": {"artifact": {"path": "org/lwjgl/lwjgl/3.3.2/lwjgl-3.3.2-natives-linux.jar", "url": "https://libs/lwjgl-linux.jar"}},
     "rules": [{"action": "allow", "os": {"name": "linux"}}]},
    {"name": "org.lwjgl:lwjgl:3.3.2:natives-windows",
     "downloads": {"artifact": {"path": "x.jar", "url": "https://libs/x.jar"}},
     "rules": [{"action": "allow", "os": {"name": "windows"}}]},
    {"name": "org.ow2.asm:asm:9.6"}
  ]
}`

func TestParseModernDocument(t *testing.T) {
	d, err := Parse("1.20.4", modernDoc, linuxOpts)
	require.NoError(t, err)

	assert.Equal(t, "net.minecraft.client.main.Main", d.EntryPoint)
	assert.Equal(t, catalog.ChannelRelease, d.Channel)
	assert.Equal(t, 17, d.RequiredRuntime)
	assert.Equal(t, "12", d.AssetGroup)
	assert.Equal(t, "https://meta/12.json", d.AssetIndexURL)
	assert.Equal(t, "https://dl/client.jar", d.ClientURL)
	require.Len(t, d.GameArgs, 2)

	require.Len(t, d.Dependencies, 3)
	assert.Equal(t, "com.mojang:brigadier:1.2.9", d.Dependencies[0].Coordinate)
	assert.False(t, d.Dependencies[0].IsNativeMarked())

	assert.True(t, d.Dependencies[1].IsNativeMarked())
	assert.False(t, d.Dependencies[1].HasNative)

	asm := d.Dependencies[2]
	assert.Equal(t, "org/ow2/asm/asm/9.6/asm-9.6.jar", asm.ArtifactPath)
	assert.Equal(t, "https://libraries.minecraft.net/org/ow2/asm/asm/9.6/asm-9.6.jar", asm.ArtifactURL)
}

func TestParseFallbacks(t *testing.T) {
	doc := `{"mainClass": "M", "assetIndex": {"id": "1.12", "url": "u"}, "downloads": {"client": {"url": "c"}}}`
	d, err := Parse("1.12.2", doc, linuxOpts)
	require.NoError(t, err)
	assert.Equal(t, "1.12", d.AssetGroup)
	assert.Equal(t, 8, d.RequiredRuntime)

	doc = `{"mainClass": "M", "downloads": {"client": {"url": "c"}}}`
	d, err = Parse("1.21.1", doc, linuxOpts)
	require.NoError(t, err)
	assert.Equal(t, LegacyAssetGroup, d.AssetGroup)
	assert.Equal(t, 21, d.RequiredRuntime)
	assert.Empty(t, d.AssetIndexURL)
}

func TestParseFatalFields(t *testing.T) {
	_, err := Parse("1.20.4", `{"mainClass": "M", "downloads": {}}`, linuxOpts)
	assert.ErrorIs(t, err, ErrMissingArtifact)

	_, err = Parse("1.20.4", `{"downloads": {"client": {"url": "c"}}}`, linuxOpts)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestParseScansInvalidDocument(t *testing.T) {
	// the trailing comma makes the document invalid JSON
	doc := `{"assetIndex": {"id": "16", "url": "https://meta/16.json"},
	  "downloads": {"client": {"url": "https://dl/client.jar"}},
	  "javaVersion": {"majorVersion": 21},
	  "libraries": [
	    {"name": "a:b:1", "downloads": {"artifact": {"path": "a/b/1/b-1.jar", "url": "https://libs/b.jar"}}},
	    {"name": "c:d:2", "rules": [{"action": "allow", "os": {"name": "osx"}}]},
	  ],
	  "mainClass": "net.minecraft.client.main.Main",}`

	d, err := Parse("1.21.1", doc, linuxOpts)
	require.NoError(t, err)
	assert.Equal(t, "net.minecraft.client.main.Main", d.EntryPoint)
	assert.Equal(t, 21, d.RequiredRuntime)
	assert.Equal(t, "16", d.AssetGroup)
	assert.Equal(t, "https://dl/client.jar", d.ClientURL)
	require.Len(t, d.Dependencies, 1)
	assert.Equal(t, "a/b/1/b-1.jar", d.Dependencies[0].ArtifactPath)
}

func TestResolveDependenciesNatives(t *testing.T) {
	libs := []manifests.Library{
		{
			Name:    "org.lwjgl.lwjgl:lwjgl-platform:2.9.4",
			Natives: map[string]string{"linux": "natives-linux", "osx": "natives-osx"},
			Downloads: &manifests.LibraryDownloads{
				Classifiers: map[string]*manifests.Artifact{
					"natives-linux": {Path: "org/lwjgl/lwjgl/lwjgl-platform/2.9.4/lwjgl-platform-2.9.4-natives-linux.jar", URL: "https://libs/n.jar"},
				},
			},
		},
		{
			// classifier known but no artifact: the path comes from the coordinate
			Name:    "net.java.jinput:jinput-platform:2.0.5",
			Natives: map[string]string{"linux": "natives-linux"},
		},
		{
			// explicit natives-<os> key under downloads
			Name: "ca.weblite:java-objc-bridge:1.0.0",
			Downloads: &manifests.LibraryDownloads{
				Natives: map[string]*manifests.Artifact{"natives-linux": {Path: "objc.jar"}},
			},
		},
		{Name: ""},
	}

	deps := ResolveDependencies(libs, Options{Env: rules.EnvFor("linux", "amd64"), LibrariesBaseURL: "https://mirror/"})
	require.Len(t, deps, 3)

	assert.True(t, deps[0].HasNative)
	assert.Equal(t, "https://libs/n.jar", deps[0].NativeURL)
	assert.Equal(t, "org/lwjgl/lwjgl/lwjgl-platform/2.9.4/lwjgl-platform-2.9.4.jar", deps[0].ArtifactPath)
	assert.Equal(t, "https://mirror/"+deps[0].ArtifactPath, deps[0].ArtifactURL)

	assert.True(t, deps[1].HasNative)
	assert.Equal(t, "net/java/jinput/jinput-platform/2.0.5/jinput-platform-2.0.5-natives-linux.jar", deps[1].NativePath)
	assert.Equal(t, "https://mirror/"+deps[1].NativePath, deps[1].NativeURL)

	assert.Equal(t, "net/java/jinput/jinput-platform/2.0.5/jinput-platform-2.0.5.jar", deps[1].ArtifactPath)

	assert.True(t, deps[2].HasNative)
	assert.Equal(t, "https://mirror/objc.jar", deps[2].NativeURL)
	assert.Equal(t, "ca/weblite/java-objc-bridge/1.0.0/java-objc-bridge-1.0.0.jar", deps[2].ArtifactPath)
}

func TestResolveDependenciesPolicy(t *testing.T) {
	libs := []manifests.Library{{
		Name:  "x:y:1",
		Rules: []manifests.Rule{{OS: &manifests.RuleOS{Name: "osx"}}},
	}}
	assert.Empty(t, ResolveDependencies(libs, linuxOpts))

	permissive := linuxOpts
	permissive.Policy = rules.PolicyPermissive
	assert.Len(t, ResolveDependencies(libs, permissive), 1)
}

type docFetcher map[string]string

func (f docFetcher) FetchText(ctx context.Context, url string) (string, error) {
	doc, ok := f[url]
	if !ok {
		return "", errors.New("not found: " + url)
	}
	return doc, nil
}

func TestResolver(t *testing.T) {
	r := NewResolver(docFetcher{"https://meta/1.20.4.json": modernDoc}, linuxOpts)

	d, err := r.Resolve(context.Background(), catalog.Summary{ID: "1.20.4", Channel: catalog.ChannelRelease, DetailURL: "https://meta/1.20.4.json"})
	require.NoError(t, err)
	assert.Equal(t, "1.20.4", d.ID)

	_, err = r.Resolve(context.Background(), catalog.Summary{ID: "x", DetailURL: "https://meta/x.json"})
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), catalog.Summary{ID: "y"})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}
