package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/targets"
	"example.com/live_blur/pkg/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <video>",
	Short: "Blur a recorded video and save the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("upload-url", "", "Upload endpoint URL")
	uploadCmd.Flags().StringSliceP("target", "t", nil, "Target ids to leave unblurred")
	uploadCmd.Flags().StringP("out", "o", "", "Output file (default blurred_<input>)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	input := args[0]
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(filepath.Dir(input), "blurred_"+filepath.Base(input))
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	names := targets.NewSelection(cfg.Selected...).Names(catalog)

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	c := upload.NewClient(upload.Config{URL: cfg.UploadURL, Logger: logger.DefaultLogger})
	err = c.Blur(cmd.Context(), input, names, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (kept: %s)\n", out, strings.Join(names, ", "))
	return nil
}
