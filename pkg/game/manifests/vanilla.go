package manifests

import (
	"encoding/json"
	"strings"
)

/////////////////////////////////////////////////////////////////////
// MCManifest: root version catalog
/////////////////////////////////////////////////////////////////////

type MCManifest struct {
	Latest   LatestVersions `json:"latest"`
	Versions []VersionInfo  `json:"versions"`
}

type LatestVersions struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

type VersionInfo struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	SHA1        string `json:"sha1,omitempty"`
	ReleaseTime string `json:"releaseTime,omitempty"`
}

/////////////////////////////////////////////////////////////////////
// Rules
/////////////////////////////////////////////////////////////////////

type RuleAction string

const (
	ActionAllow    RuleAction = "allow"
	ActionDisallow RuleAction = "disallow"
)

type RuleOS struct {
	Name string `json:"name,omitempty"`
	Arch string `json:"arch,omitempty"`
}

// Rule is one platform condition. A rule without OS and Features applies
// everywhere.
type Rule struct {
	Action   RuleAction      `json:"action,omitempty"`
	OS       *RuleOS         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

/////////////////////////////////////////////////////////////////////
// VVersionManifest: Vanilla Version Manifest
/////////////////////////////////////////////////////////////////////

type VVersionManifest struct {
	ID                 string                   `json:"id"`
	Type               string                   `json:"type"`
	MainClass          string                   `json:"mainClass"`
	Assets             string                   `json:"assets"`
	AssetIndex         *AssetIndexRef           `json:"assetIndex,omitempty"`
	Downloads          map[string]DownloadEntry `json:"downloads"`
	Libraries          []Library                `json:"libraries"`
	JavaVersion        *JavaVersion             `json:"javaVersion,omitempty"`
	Arguments          *Arguments               `json:"arguments,omitempty"`
	MinecraftArguments string                   `json:"minecraftArguments,omitempty"`
}

type AssetIndexRef struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type JavaVersion struct {
	Component    string `json:"component"`    // "java-runtime-gamma"
	MajorVersion int    `json:"majorVersion"` // 17
}

type DownloadEntry struct {
	Sha1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Arguments holds the templated argument lists of 1.13+ documents.
type Arguments struct {
	Game []Argument `json:"game"`
	JVM  []Argument `json:"jvm"`
}

// Argument is either a plain string or {"rules": [...], "value": string|[]string}.
type Argument struct {
	Values []string
	Rules  []Rule
}

func (a *Argument) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.Values = []string{s}
		return nil
	}

	var obj struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	a.Rules = obj.Rules
	if err := json.Unmarshal(obj.Value, &s); err == nil {
		a.Values = []string{s}
		return nil
	}
	return json.Unmarshal(obj.Value, &a.Values)
}

/////////////////////////////////////////////////////////////////////
// Libraries
/////////////////////////////////////////////////////////////////////

type Library struct {
	Name      string            `json:"name"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
	// Natives maps an OS name to a classifier, "${arch}" stands for the
	// pointer width.
	Natives map[string]string `json:"natives,omitempty"`
	// URL is the maven repository of libraries without a downloads block.
	URL string `json:"url,omitempty"`
}

type Artifact struct {
	Path string `json:"path"`
	Sha1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// LibraryDownloads also keeps the "natives-<os>" entries some documents put
// directly under downloads.
type LibraryDownloads struct {
	Artifact    *Artifact            `json:"artifact,omitempty"`
	Classifiers map[string]*Artifact `json:"classifiers,omitempty"`
	Natives     map[string]*Artifact `json:"-"`
}

func (d *LibraryDownloads) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		switch {
		case key == "artifact":
			if err := json.Unmarshal(value, &d.Artifact); err != nil {
				return err
			}
		case key == "classifiers":
			if err := json.Unmarshal(value, &d.Classifiers); err != nil {
				return err
			}
		case strings.HasPrefix(key, "natives-"):
			var art Artifact
			if err := json.Unmarshal(value, &art); err != nil {
				return err
			}
			if d.Natives == nil {
				d.Natives = make(map[string]*Artifact)
			}
			d.Natives[key] = &art
		}
	}
	return nil
}

// Lookup returns the artifact stored under a native classifier key, searching
// the natives-<os> entries before the classifiers map.
func (d *LibraryDownloads) Lookup(key string) *Artifact {
	if d == nil {
		return nil
	}
	if a := d.Natives[key]; a != nil {
		return a
	}
	return d.Classifiers[key]
}

/////////////////////////////////////////////////////////////////////
// AssetsManifest
/////////////////////////////////////////////////////////////////////

type AssetsManifest struct {
	Objects map[string]AssetObject `json:"objects"`
}

type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}
