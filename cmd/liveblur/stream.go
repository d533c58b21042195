package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/live_blur/client"
	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/config"
	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/metrics"
	"example.com/live_blur/pkg/statusserver"
	"example.com/live_blur/pkg/video"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream the camera to the live blurring endpoint",
	Long: `Stream captures frames from the camera, sends them to the service and
renders the processed frames. Commands are read from standard input:

  start            start streaming
  stop             stop streaming
  toggle <id>      add or remove a target
  status           print the session state
  quit             exit`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().String("server-url", "", "Live endpoint URL (ws:// or wss://)")
	streamCmd.Flags().StringSliceP("target", "t", nil, "Target ids to leave unblurred")
	streamCmd.Flags().String("status-addr", "", "Listen address of the status server")
	streamCmd.Flags().String("source", "", "Capture source: ffmpeg or file")
	streamCmd.Flags().String("device", "", "V4L2 device used by the ffmpeg source")
	streamCmd.Flags().String("file", "", "Still image used by the file source")
	streamCmd.Flags().String("output-dir", "", "Directory where processed frames are saved")
	streamCmd.Flags().Bool("no-autostart", false, "Wait for a start command instead of streaming immediately")
}

func runStream(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.DefaultLogger
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	var saver *video.FrameSaver
	if cfg.Output.Dir != "" {
		if saver, err = video.NewFrameSaver(cfg.Output.Dir, cfg.Output.LatestOnly); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	src, err := newSource(ctx, g, cfg.Capture, log)
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		ServerURL: cfg.ServerURL,
		Catalog:   catalog,
		Targets:   cfg.Selected,
		Source:    src,
		Metrics:   m,
		Saver:     saver,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	c.OnStatusChange(func(s client.Snapshot) {
		log.Info("session status", "status", s.Status, "message", s.ErrorMessage, "targets", s.SelectedTargets)
	})

	srv := statusserver.New(cfg.StatusAddr, c, reg, log)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		return c.Close()
	})

	go console(cmd.InOrStdin(), cmd.OutOrStdout(), c, stop)

	if manual, _ := cmd.Flags().GetBool("no-autostart"); !manual {
		if err := c.Start(); err != nil {
			log.Warn("not streaming", "error", err)
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if saver != nil {
		saved, dropped := saver.Stats()
		log.Info("frames saved", "saved", saved, "failed", dropped)
	}
	return nil
}

// newSource builds the capture source. Sources that run in the background
// are started in g.
func newSource(ctx context.Context, g *errgroup.Group, c config.Capture, log *slog.Logger) (capture.Source, error) {
	switch c.Source {
	case config.SourceFile:
		return capture.LoadFile(c.File)
	case config.SourceFFmpeg:
		src := capture.NewFFmpegSource(capture.FFmpegConfig{
			Device: c.Device,
			Width:  c.Width,
			Height: c.Height,
			FPS:    c.FPS,
			Binary: c.Binary,
			Logger: log,
		})
		g.Go(func() error {
			return src.Run(ctx)
		})
		return src, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", c.Source)
	}
}

// console applies commands read from r. The quit command calls quit.
func console(r io.Reader, w io.Writer, c *client.Client, quit func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "start":
			err = c.Start()
		case "stop":
			err = c.Stop()
		case "toggle":
			if len(fields) != 2 {
				err = errors.New("usage: toggle <id>")
				break
			}
			var selected bool
			if selected, err = c.ToggleTarget(fields[1]); err == nil {
				fmt.Fprintf(w, "%s selected: %t\n", fields[1], selected)
			}
		case "status":
			s := c.Snapshot()
			fmt.Fprintf(w, "status=%s targets=%v sent=%d received=%d message=%q\n",
				s.Status, s.SelectedTargets, s.FrameSequence, s.FramesReceived, s.ErrorMessage)
		case "quit", "exit":
			quit()
			return
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}
