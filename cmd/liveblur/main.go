// Command liveblur streams a camera to the bottle blurring service, uploads
// recorded videos for blurring and lists the known targets.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/live_blur/pkg/config"
	"example.com/live_blur/pkg/logger"
)

// flagKeys maps command-line flags to configuration keys. Flags are bound
// for whichever command runs.
var flagKeys = map[string]string{
	"server-url":  "server_url",
	"upload-url":  "upload_url",
	"target":      "selected",
	"status-addr": "status_addr",
	"source":      "capture.source",
	"device":      "capture.device",
	"file":        "capture.file",
	"output-dir":  "output.dir",
}

var (
	loader = config.NewLoader()
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "liveblur",
	Short:        "Real-time camera client for the bottle blurring service",
	SilenceUsage: true,
	Long: `liveblur streams camera frames to the blurring service and shows the
processed frames it sends back. Selected targets are left unblurred.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		home, _ := os.UserHomeDir()
		config.LoadDotEnv(envFile, filepath.Join(home, ".liveblur.env"))

		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := loader.Viper().BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}

		path, _ := cmd.Flags().GetString("config")
		loaded, err := loader.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logger.SetVerbose(true)
		} else {
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before configuration")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
