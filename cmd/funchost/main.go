package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/corvus-dotnet/funchost/internal/log"
	"github.com/corvus-dotnet/funchost/internal/model"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/funchost on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagTee            bool   // value of --tee flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "funchost")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is funchost.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	runCmd.Flags().BoolVar(&flagTee, "tee", false, "dump captured host output on teardown")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initFunchost

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("funchost failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "funchost",
	Short:        "Test harness bringing up Azure Functions host processes",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run starts every configured host, waits for an interrupt, then tears them all down",
	RunE:  doRun,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "sweep kills orphaned host processes left over from crashed runs",
	RunE:  doSweep,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of funchost",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("funchost: version info not available")
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("funchost: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initFunchost(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("FUNCHOST_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, "funchost.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		// sweep and version work without a config file
		config = model.DefaultConfig()
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			return fmt.Errorf("parsing config %s: %w", configPath, err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(config.Verbose))

	slog.Debug("funchost run", "configPath", configPath)
	slog.Debug("funchost run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
