package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/remoteplay/internal/capture"
	"github.com/1ureka/remoteplay/internal/config"
	"github.com/1ureka/remoteplay/internal/engine"
	"github.com/1ureka/remoteplay/internal/preview"
	"github.com/1ureka/remoteplay/internal/session"
	"github.com/1ureka/remoteplay/internal/util"
)

type runOptions struct {
	configPath string
	host       string
	preview    string
	record     string
	debug      bool
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the device and start streaming",
		Long: `Connect to the device and start streaming.

Settings are read from --config when given; flags override the file. If no
host is configured, it is asked for interactively.`,
		Example: `  remoteplay run --host 192.168.1.20
  remoteplay run --config remoteplay.yaml --preview 127.0.0.1:8080
  remoteplay run --host 192.168.1.20 --record session.rpz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&opts.host, "host", "", "Device IPv4 address")
	cmd.Flags().StringVar(&opts.preview, "preview", "", "Serve the preview relay on this address (e.g. 127.0.0.1:8080)")
	cmd.Flags().StringVar(&opts.record, "record", "", "Record completed frames to this file")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	return cmd
}

// resolveConfig merges the config file, the flags that were set, and the
// interactive host prompt, in that order.
func resolveConfig(cmd *cobra.Command, opts runOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("preview") {
		cfg.PreviewAddr = opts.preview
	}
	if flags.Changed("record") {
		cfg.Record = opts.record
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}

	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = askHost()
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	if cfg.Debug {
		util.EnableDebug()
	}

	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("Remoteplay v%s", version)
	pterm.Println()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []engine.Option{engine.WithRegistry(reg)}

	if cfg.Record != "" {
		rec, closeRec, err := openRecorder(cfg.Record)
		if err != nil {
			return err
		}
		defer closeRec()
		opts = append(opts, engine.WithFrameSink(rec))
	}

	eng := engine.New(cfg, opts...)

	if cfg.PreviewAddr != "" {
		srv := preview.NewServer(eng, reg)
		if _, err := srv.Start(cfg.PreviewAddr); err != nil {
			return err
		}
		defer srv.Close()
	}

	go watchState(ctx, eng)

	err := eng.Run(ctx)
	switch {
	case errors.Is(err, session.ErrInvalidAddress):
		return fmt.Errorf("%w (fix host in your config or pass --host)", err)
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	}

	util.LogInfo("session closed")
	return nil
}

func openRecorder(path string) (*capture.Recorder, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create recording: %w", err)
	}
	rec, err := capture.NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	util.LogInfo("recording frames to %s", path)
	return rec, func() {
		if err := rec.Close(); err != nil {
			util.LogWarning("flushing recording: %v", err)
		}
		f.Close()
		util.LogInfo("recorded %d frames to %s", rec.Frames(), path)
	}, nil
}

// watchState shows a spinner while the session is being established and
// logs every later state change.
func watchState(ctx context.Context, eng *engine.Engine) {
	spinner, _ := pterm.DefaultSpinner.Start("connecting to device...")
	stopSpinner := func(ok bool, msg string) {
		if spinner == nil {
			return
		}
		if ok {
			spinner.Success(msg)
		} else {
			spinner.Warning(msg)
		}
		spinner = nil
	}
	defer stopSpinner(false, "stopped")

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	prev := session.State(-1)
	for {
		select {
		case <-ticker.C:
			state := eng.State()
			if spinner != nil && state == session.Connecting {
				spinner.UpdateText(fmt.Sprintf("connecting to device... (attempts: %d)", eng.ConnectionAttempts()))
			}
			if state == prev {
				continue
			}
			prev = state

			switch state {
			case session.ConnectedWait:
				if spinner != nil {
					spinner.UpdateText("connected, waiting for video...")
				}
			case session.ConnectedStreaming:
				stopSpinner(true, "streaming")
			case session.ErrBadAddress:
				stopSpinner(false, "bad address")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// askHost prompts for the device address until something non-empty is
// entered. Validity is checked by the session itself.
func askHost() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Device IP address (e.g. 192.168.1.20)").
			Show()

		pterm.Println()
		if host := strings.TrimSpace(raw); host != "" {
			return host
		}
		util.LogWarning("please enter the device's IP address")
	}
}
