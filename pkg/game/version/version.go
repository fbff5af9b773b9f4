package version

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/manifests"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/jsonscan"
	"limeal.fr/mcboot/pkg/utils"
)

const (
	DefaultLibrariesBaseURL = "https://libraries.minecraft.net/"
	LegacyAssetGroup        = "legacy"
)

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}

// Dependency is one library resolved for the host platform.
type Dependency struct {
	Coordinate   string
	ArtifactPath string
	ArtifactURL  string
	HasNative    bool
	NativePath   string
	NativeURL    string
}

// IsNativeMarked reports a library whose own artifact is a native archive,
// recognised by its coordinate.
func (d Dependency) IsNativeMarked() bool {
	return !d.HasNative && d.ArtifactPath != "" && strings.Contains(strings.ToLower(d.Coordinate), "natives")
}

type Descriptor struct {
	ID              string
	Channel         catalog.Channel
	EntryPoint      string
	RequiredRuntime int
	AssetGroup      string
	AssetIndexURL   string
	ClientURL       string
	Dependencies    []Dependency

	// GameArgs and LegacyArgs are the templated game arguments of the
	// document, 1.13+ and older format respectively.
	GameArgs   []manifests.Argument
	LegacyArgs string
}

type Options struct {
	Env              rules.Env
	Policy           rules.Policy
	LibrariesBaseURL string
}

func (o Options) librariesBase() string {
	if o.LibrariesBaseURL == "" {
		return DefaultLibrariesBaseURL
	}
	return o.LibrariesBaseURL
}

/////////////////////////////////////////////////////////////////////
// Runtime requirement
/////////////////////////////////////////////////////////////////////

// ParseMCMajor returns N for ids of the form 1.N[.M], 0 otherwise.
func ParseMCMajor(id string) int {
	rest, ok := strings.CutPrefix(id, "1.")
	if !ok {
		return 0
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return n
}

// RequiredRuntimeForID derives the runtime major a version needs when its
// document does not say.
func RequiredRuntimeForID(id string) int {
	switch major := ParseMCMajor(id); {
	case major >= 21:
		return 21
	case major >= 18:
		return 17
	case major >= 17:
		return 16
	}
	return 8
}

/////////////////////////////////////////////////////////////////////
// Parsing
/////////////////////////////////////////////////////////////////////

// Parse builds the descriptor of version id from its detail document.
func Parse(id, text string, opts Options) (*Descriptor, error) {
	var m manifests.VVersionManifest
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		logger.Warn("version document is not valid JSON, scanning it", utils.VersionKey, id, utils.ErrorKey, err)
		m = scanManifest(text)
	}
	if id == "" {
		id = m.ID
	}

	d := &Descriptor{
		ID:         id,
		Channel:    catalog.Channel(m.Type),
		EntryPoint: m.MainClass,
		LegacyArgs: m.MinecraftArguments,
	}
	if d.EntryPoint == "" {
		return nil, fmt.Errorf("%w: version %s declares no mainClass", ErrMalformedDocument, id)
	}

	if m.JavaVersion != nil && m.JavaVersion.MajorVersion > 0 {
		d.RequiredRuntime = m.JavaVersion.MajorVersion
	} else {
		d.RequiredRuntime = RequiredRuntimeForID(id)
	}

	switch {
	case m.Assets != "":
		d.AssetGroup = m.Assets
	case m.AssetIndex != nil && m.AssetIndex.ID != "":
		d.AssetGroup = m.AssetIndex.ID
	default:
		logger.Warn("version declares no asset group", utils.VersionKey, id, utils.ErrorKey, ErrMalformedDocument)
		d.AssetGroup = LegacyAssetGroup
	}
	if m.AssetIndex != nil {
		d.AssetIndexURL = m.AssetIndex.URL
	}

	d.ClientURL = m.Downloads["client"].URL
	if d.ClientURL == "" {
		return nil, fmt.Errorf("%w: version %s has no client download", ErrMissingArtifact, id)
	}

	if m.Arguments != nil {
		d.GameArgs = m.Arguments.Game
	}
	d.Dependencies = ResolveDependencies(m.Libraries, opts)
	return d, nil
}

// scanManifest fills the fields Parse needs without requiring the whole
// document to be valid.
func scanManifest(text string) manifests.VVersionManifest {
	var m manifests.VVersionManifest
	m.ID, _ = jsonscan.FindString(text, "id")
	m.Type, _ = jsonscan.FindString(text, "type")
	m.MainClass, _ = jsonscan.FindString(text, "mainClass")
	m.Assets, _ = jsonscan.FindString(text, "assets")
	m.MinecraftArguments, _ = jsonscan.FindString(text, "minecraftArguments")

	if obj, ok := jsonscan.FindObject(text, "assetIndex"); ok {
		idx := &manifests.AssetIndexRef{}
		idx.ID, _ = jsonscan.FindString(obj, "id")
		idx.URL, _ = jsonscan.FindString(obj, "url")
		m.AssetIndex = idx
	}
	if obj, ok := jsonscan.FindObject(text, "javaVersion"); ok {
		if major, ok := jsonscan.FindInt(obj, "majorVersion"); ok {
			m.JavaVersion = &manifests.JavaVersion{MajorVersion: major}
		}
	}
	if dl, ok := jsonscan.FindObject(text, "downloads"); ok {
		if client, ok := jsonscan.FindObject(dl, "client"); ok {
			url, _ := jsonscan.FindString(client, "url")
			m.Downloads = map[string]manifests.DownloadEntry{"client": {URL: url}}
		}
	}

	if arr, ok := jsonscan.FindArray(text, "libraries"); ok {
		for _, obj := range topLevelObjects(arr) {
			var lib manifests.Library
			if err := json.Unmarshal([]byte(obj), &lib); err != nil {
				logger.Debug("skipping unreadable library entry", utils.ErrorKey, err)
				continue
			}
			m.Libraries = append(m.Libraries, lib)
		}
	}
	return m
}

// topLevelObjects splits the text of an array into its object members.
func topLevelObjects(arr string) []string {
	var out []string
	pos := 1
	for pos < len(arr) {
		s := strings.IndexByte(arr[pos:], '{')
		if s == -1 {
			break
		}
		s += pos
		e := jsonscan.MatchClosing(arr, s)
		if e == jsonscan.NotFound {
			break
		}
		out = append(out, arr[s:e+1])
		pos = e + 1
	}
	return out
}

/////////////////////////////////////////////////////////////////////
// Dependencies
/////////////////////////////////////////////////////////////////////

// ResolveDependencies keeps the libraries that apply to opts.Env, in document
// order, with their artifact and native locations resolved.
func ResolveDependencies(libs []manifests.Library, opts Options) []Dependency {
	deps := make([]Dependency, 0, len(libs))
	for _, lib := range libs {
		if !rules.ShouldInclude(lib.Rules, opts.Env, opts.Policy) {
			continue
		}
		dep, ok := resolveLibrary(lib, opts)
		if !ok {
			logger.Debug("dropping library without artifact", "library", lib.Name)
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

func resolveLibrary(lib manifests.Library, opts Options) (Dependency, bool) {
	dep := Dependency{Coordinate: lib.Name}
	base := opts.librariesBase()
	if lib.URL != "" {
		base = lib.URL
	}

	if lib.Downloads != nil && lib.Downloads.Artifact != nil && lib.Downloads.Artifact.Path != "" {
		art := lib.Downloads.Artifact
		dep.ArtifactPath = art.Path
		dep.ArtifactURL = art.URL
		if dep.ArtifactURL == "" {
			dep.ArtifactURL = utils.JoinURL(base, art.Path)
		}
	}

	if classifier, art, ok := rules.NativeClassifier(lib, opts.Env); ok {
		switch {
		case art != nil && art.Path != "":
			dep.NativePath = art.Path
			dep.NativeURL = art.URL
			if dep.NativeURL == "" {
				dep.NativeURL = utils.JoinURL(base, art.Path)
			}
		case lib.Name != "":
			if p, err := utils.MavenPath(lib.Name + ":" + classifier); err == nil {
				dep.NativePath = p
				dep.NativeURL = utils.JoinURL(base, p)
			}
		}
		dep.HasNative = dep.NativePath != ""
	}

	if dep.ArtifactPath == "" && lib.Name != "" {
		p, err := utils.MavenPath(lib.Name)
		if err != nil {
			logger.Debug("invalid library coordinate", "library", lib.Name, utils.ErrorKey, err)
			return dep, dep.HasNative
		}
		dep.ArtifactPath = p
		dep.ArtifactURL = utils.JoinURL(base, p)
	}

	return dep, dep.ArtifactPath != "" || dep.HasNative
}

/////////////////////////////////////////////////////////////////////
// Resolver
/////////////////////////////////////////////////////////////////////

type Resolver struct {
	Fetcher catalog.TextFetcher
	Options Options
}

func NewResolver(f catalog.TextFetcher, opts Options) *Resolver {
	return &Resolver{Fetcher: f, Options: opts}
}

// Resolve fetches the detail document of s and parses it.
func (r *Resolver) Resolve(ctx context.Context, s catalog.Summary) (*Descriptor, error) {
	d, _, err := r.ResolveDocument(ctx, s)
	return d, err
}

// ResolveDocument is Resolve that also returns the raw detail document.
func (r *Resolver) ResolveDocument(ctx context.Context, s catalog.Summary) (*Descriptor, string, error) {
	if s.DetailURL == "" {
		return nil, "", fmt.Errorf("%w: version %s has no detail document", ErrMalformedDocument, s.ID)
	}
	text, err := r.Fetcher.FetchText(ctx, s.DetailURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch version %s: %w", s.ID, err)
	}

	d, err := Parse(s.ID, text, r.Options)
	if err != nil {
		return nil, "", err
	}
	if d.Channel == "" {
		d.Channel = s.Channel
	}
	logger.Debug("version resolved", utils.VersionKey, d.ID, utils.CountKey, len(d.Dependencies), utils.RuntimeKey, d.RequiredRuntime)
	return d, text, nil
}
