package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"limeal.fr/mcboot/pkg/config"
	"limeal.fr/mcboot/pkg/connectors"
	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/game/folder/builders"
	"limeal.fr/mcboot/pkg/game/launcher"
	"limeal.fr/mcboot/pkg/game/rules"
	"limeal.fr/mcboot/pkg/game/session"
	"limeal.fr/mcboot/pkg/game/version"
	"limeal.fr/mcboot/pkg/utils"
)

var (
	debug      bool
	configPath string
	gameDir    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mcboot",
	Short: "mcboot installs and launches minecraft versions",
	Long: `mcboot installs and launches minecraft versions.

It reads the official version catalog, downloads the client, libraries and
assets of a version into a local installation, picks a matching java runtime
and starts the game with an offline profile.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if gameDir != "" {
			cfg.Dir = gameDir
		}
		initLoggers()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&gameDir, "dir", "", "Installation directory (overrides the configuration)")
}

func initLoggers() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	sl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(sl)

	utils.InitLogger(sl)
	catalog.InitLogger(sl)
	version.InitLogger(sl)
	folder.InitLogger(sl)
	builders.InitLogger(sl)
	launcher.InitLogger(sl)
	session.InitLogger(sl)
}

// newService wires a session from the loaded configuration. The returned
// pool serves file, sftp and s3 locators and must be closed.
func newService() (*session.Service, *connectors.Pool, error) {
	inst, err := folder.Open(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}

	pool := connectors.NewPool()
	fetcher, err := utils.NewFetcher(cfg.FetcherOptions(pool.Source))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	policy, err := cfg.Policy()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	mode, err := cfg.GameArgsMode()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	tuning, err := cfg.Tuning()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	env := rules.DetectEnv()
	composer := launcher.NewComposer(env)
	composer.Policy = policy
	composer.GameArgs = mode
	composer.LauncherName = cfg.LauncherName
	composer.LauncherVersion = cfg.LauncherVersion

	svc, err := session.New(session.Config{
		Installation: inst,
		Fetcher:      fetcher,
		ManifestURL:  cfg.ManifestURL,
		VersionOptions: version.Options{
			Env:              env,
			Policy:           policy,
			LibrariesBaseURL: cfg.LibrariesBaseURL,
		},
		Composer:          composer,
		Workers:           cfg.Workers,
		ResourcesBaseURL:  cfg.ResourcesBaseURL,
		Tuning:            tuning,
		MinUsernameLength: cfg.MinUsernameLength,
		MinMemoryMB:       cfg.MinMemoryMB,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
