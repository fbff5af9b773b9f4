package launcher

import (
	"path/filepath"
	"regexp"
	"strings"

	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/game/version"
)

/////////////////////////////////////////////////////////////////////
// Parse and format args
/////////////////////////////////////////////////////////////////////

var placeholderRe = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

func (c *Composer) placeholders(in LaunchInput, plan *Plan) map[string]string {
	desc, g, p := in.Descriptor, in.Installation, in.Profile

	channel := string(desc.Channel)
	if channel == "" {
		channel = "release"
	}
	assets := g.GetDirectory(folder.DirectoryAssets)

	return map[string]string{
		"auth_player_name":    p.Username,
		"version_name":        desc.ID,
		"game_directory":      g.GetPath(),
		"assets_root":         assets,
		"game_assets":         filepath.Join(assets, "virtual", desc.AssetGroup),
		"assets_index_name":   desc.AssetGroup,
		"auth_uuid":           plan.UUID,
		"auth_access_token":   p.Token,
		"auth_session":        p.Token,
		"clientid":            "0",
		"auth_xuid":           "0",
		"user_type":           p.UserType,
		"user_properties":     "{}",
		"version_type":        channel,
		"resolution_width":    "1280",
		"resolution_height":   "720",
		"natives_directory":   plan.NativesDir,
		"library_directory":   g.GetDirectory(folder.DirectoryLibraries),
		"launcher_name":       c.LauncherName,
		"launcher_version":    c.LauncherVersion,
		"classpath":           strings.Join(plan.Classpath, c.classpathSeparator()),
		"classpath_separator": c.classpathSeparator(),
	}
}

// FormatArg substitutes every known ${placeholder} of arg. Unknown
// placeholders are left untouched.
func FormatArg(arg string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(arg, func(m string) string {
		if v, ok := vars[m[2:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// documentGameArgs templates the game arguments of the version document.
// Rule-bearing entries are kept only when their rules include them on the
// composer environment.
func (c *Composer) documentGameArgs(desc *version.Descriptor, vars map[string]string) ([]string, bool) {
	if len(desc.GameArgs) > 0 {
		var out []string
		for _, a := range desc.GameArgs {
			if len(a.Rules) > 0 && !rules.ShouldInclude(a.Rules, c.Env, c.Policy) {
				continue
			}
			for _, v := range a.Values {
				out = append(out, FormatArg(v, vars))
			}
		}
		return out, true
	}

	if legacy := strings.Fields(desc.LegacyArgs); len(legacy) > 0 {
		out := make([]string, 0, len(legacy))
		for _, v := range legacy {
			out = append(out, FormatArg(v, vars))
		}
		return out, true
	}
	return nil, false
}
