// Package config loads the launcher settings from defaults, an optional YAML
// file, a .env file and MCBOOT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/folder/builders"
	"limeal.fr/mcboot/pkg/game/launcher"
	"limeal.fr/mcboot/pkg/game/profile"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

const (
	EnvPrefix = "MCBOOT_"
	// EnvConfigFile names the YAML file to load when no path is given.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

type Config struct {
	Dir               string        `yaml:"dir"`
	ManifestURL       string        `yaml:"manifest_url"`
	LibrariesBaseURL  string        `yaml:"libraries_base_url"`
	ResourcesBaseURL  string        `yaml:"resources_base_url"`
	MemoryMB          int           `yaml:"memory_mb"`
	MinMemoryMB       int           `yaml:"min_memory_mb"`
	MinUsernameLength int           `yaml:"min_username_length"`
	Workers           int           `yaml:"workers"`
	RulePolicy        string        `yaml:"rule_policy"`
	GameArgs          string        `yaml:"game_args"`
	LauncherName      string        `yaml:"launcher_name"`
	LauncherVersion   string        `yaml:"launcher_version"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	DocumentCacheSize int           `yaml:"document_cache_size"`
	RenderDistance    int           `yaml:"render_distance"`
	Boosters          []string      `yaml:"boosters"`
}

func Default() *Config {
	dir, err := folder.GetGameFolderPathForFolder(folder.DefaultFolderName)
	if err != nil {
		dir = "." + folder.DefaultFolderName
	}
	return &Config{
		Dir:               dir,
		ManifestURL:       catalog.DefaultManifestURL,
		LibrariesBaseURL:  version.DefaultLibrariesBaseURL,
		ResourcesBaseURL:  builders.DefaultResourcesBaseURL,
		MemoryMB:          profile.DefaultMemoryMB,
		MinMemoryMB:       profile.DefaultMinMemoryMB,
		MinUsernameLength: profile.MinUsernameLength,
		Workers:           runtime.NumCPU(),
		RulePolicy:        rules.PolicyStrict.String(),
		GameArgs:          string(launcher.GameArgsFixed),
		LauncherName:      launcher.DefaultLauncherName,
		LauncherVersion:   launcher.DefaultLauncherVersion,
		HTTPTimeout:       utils.DefaultFetcherOptions().Timeout,
		DocumentCacheSize: 32,
		RenderDistance:    12,
	}
}

// Load builds the configuration. path may be empty, then MCBOOT_CONFIG is
// consulted; a missing file is only an error when it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigFile)
		explicit = path != ""
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

type envField struct {
	name  string
	apply func(v string) error
}

func (c *Config) envFields() []envField {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	return []envField{
		{"DIR", str(&c.Dir)},
		{"MANIFEST_URL", str(&c.ManifestURL)},
		{"LIBRARIES_BASE_URL", str(&c.LibrariesBaseURL)},
		{"RESOURCES_BASE_URL", str(&c.ResourcesBaseURL)},
		{"MEMORY_MB", num(&c.MemoryMB)},
		{"MIN_MEMORY_MB", num(&c.MinMemoryMB)},
		{"MIN_USERNAME_LENGTH", num(&c.MinUsernameLength)},
		{"WORKERS", num(&c.Workers)},
		{"RULE_POLICY", str(&c.RulePolicy)},
		{"GAME_ARGS", str(&c.GameArgs)},
		{"LAUNCHER_NAME", str(&c.LauncherName)},
		{"LAUNCHER_VERSION", str(&c.LauncherVersion)},
		{"HTTP_TIMEOUT", func(v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			c.HTTPTimeout = d
			return nil
		}},
		{"DOCUMENT_CACHE_SIZE", num(&c.DocumentCacheSize)},
		{"RENDER_DISTANCE", num(&c.RenderDistance)},
		{"BOOSTERS", func(v string) error {
			c.Boosters = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Boosters = append(c.Boosters, b)
				}
			}
			return nil
		}},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, f := range c.envFields() {
		v, ok := lookup(EnvPrefix + f.name)
		if !ok {
			continue
		}
		if err := f.apply(v); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, f.name, v, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("dir must not be empty"))
	}
	if c.ManifestURL == "" {
		errs = append(errs, errors.New("manifest_url must not be empty"))
	}
	if c.MemoryMB <= 0 {
		errs = append(errs, fmt.Errorf("memory_mb must be positive, got %d", c.MemoryMB))
	}
	if c.MinMemoryMB <= 0 {
		errs = append(errs, fmt.Errorf("min_memory_mb must be positive, got %d", c.MinMemoryMB))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.DocumentCacheSize < 0 {
		errs = append(errs, fmt.Errorf("document_cache_size must not be negative, got %d", c.DocumentCacheSize))
	}
	if c.RenderDistance < 0 {
		errs = append(errs, fmt.Errorf("render_distance must not be negative, got %d", c.RenderDistance))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GameArgsMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Tuning(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Policy() (rules.Policy, error) {
	return rules.ParsePolicy(c.RulePolicy)
}

func (c *Config) GameArgsMode() (launcher.GameArgsMode, error) {
	return launcher.ParseGameArgsMode(c.GameArgs)
}

func (c *Config) Tuning() (folder.Tuning, error) {
	t := folder.Tuning{RenderDistance: c.RenderDistance}
	for _, s := range c.Boosters {
		b, err := folder.ParseBooster(s)
		if err != nil {
			return folder.Tuning{}, err
		}
		t.Boosters = append(t.Boosters, b)
	}
	return t, nil
}

// FetcherOptions are the fetch settings, with sources serving the non-http
// locators.
func (c *Config) FetcherOptions(sources utils.SourceResolver) utils.FetcherOptions {
	opts := utils.DefaultFetcherOptions()
	opts.UserAgent = c.LauncherName + "/" + c.LauncherVersion
	opts.Timeout = c.HTTPTimeout
	opts.CacheSize = c.DocumentCacheSize
	opts.Sources = sources
	return opts
}
