package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/logger"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/cover"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/storage"
	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/service"
)

func newCoverCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover",
		Short: "Embed, extract and inspect album artwork in audio files",
	}
	cmd.AddCommand(newCoverEmbedCommand(ctx))
	cmd.AddCommand(newCoverShowCommand(ctx))
	cmd.AddCommand(newCoverProbeCommand(ctx))
	return cmd
}

// newFileWriter builds a cover service for direct file writes. It has no
// catalog, so only WriteFileCover may be used.
func newFileWriter(cfg *config.Config) (*cover.Validator, *service.CoverService) {
	log := logger.Named("cli")
	validator := cover.NewValidator(cover.Config{
		MaxBytes:      cfg.Covers.MaxBytes,
		AllowedTypes:  cfg.Covers.AllowedTypes,
		VerifyContent: true,
	})
	svc := service.NewCoverService(
		nil,
		validator,
		codec.NewDefaultRegistry(),
		storage.NewLocalStore(cfg.Writer.MinFreeBytes, log),
		storage.NewLockTable(cfg.Writer.LockTimeout, cfg.Writer.LockDir, log),
		nil,
		log,
		service.Config{MaxParallelWrites: 1},
	)
	return validator, svc
}

func newCoverEmbedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <image> <audio-file>...",
		Short: "Embed an image as the front cover of each audio file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.load()
			if err != nil {
				return err
			}
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			validator, svc := newFileWriter(cfg)
			payload, err := validator.ParseBytes(img)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args[1:] {
				format, err := svc.WriteFileCover(cmd.Context(), path, payload)
				if err != nil {
					failed++
					colorError.Fprint(out, "✗ ")
					fmt.Fprintf(out, "%s: %v\n", path, err)
					if errors.Is(err, mediaerrors.ErrCancelled) {
						return err
					}
					continue
				}
				colorSuccess.Fprint(out, "✓ ")
				fmt.Fprintf(out, "%s (%s)\n", path, format)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args)-1)
			}
			colorInfo.Fprintf(out, "Embedded %s %dx%d into %d file(s)\n",
				payload.MIMEType, payload.Width, payload.Height, len(args)-1)
			return nil
		},
	}
}

func newCoverShowCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "show <audio-file>",
		Short: "Print or extract the embedded cover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			art, err := codec.ReadArtwork(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			switch outPath {
			case "":
				fmt.Fprintf(out, "%s %s, %d bytes", colorInfo.Sprint("cover:"), art.MIMEType, len(art.Data))
				sizer := cover.NewValidator(cover.Config{MaxBytes: int64(len(art.Data)) + 1, AllowedTypes: []string{art.MIMEType}})
				if p, err := sizer.ParseBytes(art.Data); err == nil && p.Width > 0 {
					fmt.Fprintf(out, ", %dx%d", p.Width, p.Height)
				}
				fmt.Fprintln(out)
			case "-":
				_, err = out.Write(art.Data)
			default:
				err = os.WriteFile(outPath, art.Data, 0o644)
				if err == nil {
					colorSuccess.Fprintf(out, "Wrote %s (%d bytes)\n", outPath, len(art.Data))
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the image to this file, or - for stdout")
	return cmd
}

func newCoverProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <audio-file>...",
		Short: "Report container format and artwork for each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := codec.NewDefaultRegistry()
			rows := make([][]string, 0, len(args))
			for _, path := range args {
				artwork, size := describeArtwork(path)
				rows = append(rows, []string{path, detectFormat(registry, path), artwork, size})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Format", "Artwork", "Bytes"}, rows, 3))
			return err
		},
	}
}

func detectFormat(registry *codec.Registry, path string) string {
	f, err := os.Open(path)
	if err != nil {
		return colorError.Sprint("unreadable")
	}
	defer f.Close()

	c, err := registry.Resolve(f)
	if err != nil {
		return colorWarning.Sprint("unsupported")
	}
	return string(c.Format())
}

// describeArtwork returns the embedded cover's type and size.
func describeArtwork(path string) (string, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "-", "-"
	}
	art, err := codec.ReadArtwork(data)
	if err != nil {
		return "none", "-"
	}
	return art.MIMEType, strconv.Itoa(len(art.Data))
}
