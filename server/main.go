// Command blurserver is a local stand-in for the live endpoint of the bottle
// blurring service. It speaks the same protocol and pixelates every frame.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/live_blur/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:          "blurserver",
	Short:        "Local stand-in for the live blurring endpoint",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("addr", ":8000", "Listen address")
	rootCmd.Flags().Duration("heartbeat", DefaultHeartbeat, "Interval between pings")
	rootCmd.Flags().Int("block", DefaultBlock, "Pixelation cell size")
	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
}

func run(cmd *cobra.Command, _ []string) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetVerbose(true)
	}
	addr, _ := cmd.Flags().GetString("addr")
	heartbeat, _ := cmd.Flags().GetDuration("heartbeat")
	block, _ := cmd.Flags().GetInt("block")
	log := logger.DefaultLogger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := NewServer(Options{Heartbeat: heartbeat, Block: block, Logger: log})
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("blur server starting", "addr", addr, "endpoint", LivePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
