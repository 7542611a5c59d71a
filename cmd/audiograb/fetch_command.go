package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"audiograb/internal/daemonrun"
	"audiograb/internal/fileutil"
	"audiograb/internal/media"
	"audiograb/internal/services"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var outPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Run one job and save the MP3 locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := media.NewJobRequest(args[0], quality)
			if err != nil {
				return fmt.Errorf("fetch: %s", services.PublicMessage(err))
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(verbose)
			if err != nil {
				return err
			}
			components, err := daemonrun.Build(cfg, logger)
			if err != nil {
				return err
			}

			var saved string
			result := components.Orchestrator.Execute(cmd.Context(), req, func(_ context.Context, artifact media.Artifact) error {
				target, err := resolveOutput(outPath, artifact.FileName())
				if err != nil {
					return err
				}
				if err := fileutil.CopyNew(artifact.Path, target, 0o644); err != nil {
					return err
				}
				saved = target
				return nil
			})
			if !result.Succeeded() {
				return fmt.Errorf("fetch failed (%s): %s", result.Kind(), result.Message())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s\n", saved)
			if result.Selection != nil {
				fmt.Fprintf(out, "Source format %s (%s), quality %s\n", result.Selection.FormatID, result.Selection.Codec, req.Tier)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", string(media.TierMedium), "Quality tier (low, medium, high)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file or directory (default: current directory)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level")
	return cmd
}

// resolveOutput returns the destination file. An empty path or an existing
// directory receives the artifact's display name.
func resolveOutput(outPath, name string) (string, error) {
	outPath = strings.TrimSpace(outPath)
	if outPath == "" {
		outPath = "."
	}
	info, err := os.Stat(outPath)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(outPath, name), nil
	case err == nil:
		return "", fmt.Errorf("output %s already exists", outPath)
	case errors.Is(err, os.ErrNotExist):
		return outPath, nil
	default:
		return "", fmt.Errorf("stat output: %w", err)
	}
}
