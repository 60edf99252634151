package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/remoteplay/internal/capture"
	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/util"
)

func replayCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Summarise a recording, optionally extracting its frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replay(args[0], outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write each frame to this directory as <surface>-<n>.jpg")
	return cmd
}

func replay(path, outDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rd, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	defer rd.Close()

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	var (
		counts [len(protocol.Surfaces)]int
		bytes  [len(protocol.Surfaces)]int64
	)
	for n := 0; ; n++ {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			util.LogWarning("recording ends early after %d frames: %v", n, err)
			break
		}

		counts[rec.Surface]++
		bytes[rec.Surface] += int64(len(rec.Data))

		if outDir != "" {
			name := filepath.Join(outDir, fmt.Sprintf("%s-%06d.jpg", rec.Surface, counts[rec.Surface]))
			if err := os.WriteFile(name, rec.Data, 0o644); err != nil {
				return err
			}
		}
	}

	data := pterm.TableData{{"Surface", "Frames", "Size"}}
	for _, s := range protocol.Surfaces {
		data = append(data, []string{s.String(), fmt.Sprint(counts[s]), util.FormatBytes(float64(bytes[s]))})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
