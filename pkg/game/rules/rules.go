package rules

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"limeal.fr/mcboot/pkg/game/manifests"
)

// OS identifiers as they appear in rule documents.
const (
	OSWindows = "windows"
	OSMac     = "osx"
	OSLinux   = "linux"
)

type Env struct {
	OS           string // windows | osx | linux
	Arch         string // x86_64 | aarch64 | x86 | arm
	PointerWidth int    // 64 | 32
	Features     map[string]bool
}

func DetectEnv() Env {
	return EnvFor(runtime.GOOS, runtime.GOARCH)
}

// EnvFor maps Go platform names to rule identifiers.
func EnvFor(goos, goarch string) Env {
	env := Env{OS: OSLinux, PointerWidth: 64}
	switch goos {
	case "windows":
		env.OS = OSWindows
	case "darwin":
		env.OS = OSMac
	}

	switch goarch {
	case "amd64":
		env.Arch = "x86_64"
	case "arm64":
		env.Arch = "aarch64"
	case "386":
		env.Arch = "x86"
		env.PointerWidth = 32
	case "arm":
		env.Arch = "arm"
		env.PointerWidth = 32
	default:
		env.Arch = goarch
	}
	return env
}

func (e Env) IsAppleSilicon() bool {
	return e.OS == OSMac && e.Arch == "aarch64"
}

/////////////////////////////////////////////////////////////////////
// Policy
/////////////////////////////////////////////////////////////////////

// Policy decides the outcome of a rule list where no rule matched.
type Policy int

const (
	// PolicyStrict excludes the dependency.
	PolicyStrict Policy = iota
	// PolicyPermissive includes it when no rule carries an action at all.
	PolicyPermissive
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "permissive":
		return PolicyPermissive, nil
	}
	return PolicyStrict, fmt.Errorf("unknown rule policy %q (expected strict or permissive)", s)
}

func (p Policy) String() string {
	if p == PolicyPermissive {
		return "permissive"
	}
	return "strict"
}

/////////////////////////////////////////////////////////////////////
// Evaluation
/////////////////////////////////////////////////////////////////////

// ShouldInclude evaluates rules in order. Every matching rule overwrites the
// decision, so the last match wins. An empty list always includes.
func ShouldInclude(list []manifests.Rule, env Env, policy Policy) bool {
	if len(list) == 0 {
		return true
	}

	allowed, matched, hasAction := false, false, false
	for _, r := range list {
		if r.Action != "" {
			hasAction = true
		}
		if !Applies(r, env) {
			continue
		}
		switch r.Action {
		case manifests.ActionAllow:
			allowed, matched = true, true
		case manifests.ActionDisallow:
			allowed, matched = false, true
		}
	}

	if matched {
		return allowed
	}
	return policy == PolicyPermissive && !hasAction
}

// Applies reports whether the conditions of r hold on env.
func Applies(r manifests.Rule, env Env) bool {
	if r.OS != nil {
		if r.OS.Name != "" && normalizeOS(r.OS.Name) != env.OS {
			return false
		}
		if r.OS.Arch != "" && !archMatches(r.OS.Arch, env) {
			return false
		}
	}
	for feature, want := range r.Features {
		if env.Features[feature] != want {
			return false
		}
	}
	return true
}

func normalizeOS(name string) string {
	name = strings.ToLower(name)
	if name == "macos" {
		return OSMac
	}
	return name
}

func archMatches(arch string, env Env) bool {
	switch strings.ToLower(arch) {
	case "x86", "i386":
		return env.PointerWidth == 32 && env.Arch == "x86"
	case "x86_64", "amd64":
		return env.Arch == "x86_64"
	case "arm64", "aarch64":
		return env.Arch == "aarch64"
	}
	return strings.EqualFold(arch, env.Arch)
}

/////////////////////////////////////////////////////////////////////
// Natives
/////////////////////////////////////////////////////////////////////

// NativeKeys lists the downloads keys that may hold the native archive of
// env, most specific first.
func NativeKeys(env Env) []string {
	switch env.OS {
	case OSMac:
		if env.IsAppleSilicon() {
			return []string{"natives-macos-arm64", "natives-osx", "natives-macos"}
		}
		return []string{"natives-osx", "natives-macos"}
	case OSWindows:
		switch env.Arch {
		case "aarch64":
			return []string{"natives-windows-arm64", "natives-windows"}
		case "x86":
			return []string{"natives-windows-x86", "natives-windows-32", "natives-windows"}
		}
		return []string{"natives-windows", "natives-windows-64"}
	}
	if env.PointerWidth == 32 {
		return []string{"natives-linux", "natives-linux-32"}
	}
	return []string{"natives-linux", "natives-linux-64"}
}

// NativeClassifier selects the native archive of lib for env. The classifier
// is returned even when the document has no artifact for it, so callers can
// derive a maven path from the coordinate.
func NativeClassifier(lib manifests.Library, env Env) (classifier string, artifact *manifests.Artifact, ok bool) {
	if lib.Natives != nil {
		key, found := lib.Natives[env.OS]
		if !found && env.OS == OSMac {
			key, found = lib.Natives["macos"]
		}
		if found && key != "" {
			key = strings.ReplaceAll(key, "${arch}", strconv.Itoa(env.PointerWidth))
			if env.IsAppleSilicon() {
				if a := lib.Downloads.Lookup("natives-macos-arm64"); a != nil {
					return "natives-macos-arm64", a, true
				}
			}
			return key, lib.Downloads.Lookup(key), true
		}
	}

	for _, key := range NativeKeys(env) {
		if a := lib.Downloads.Lookup(key); a != nil {
			return key, a, true
		}
	}
	return "", nil, false
}
