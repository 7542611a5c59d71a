package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"audiograb/internal/daemonrun"
	"audiograb/internal/media"
	"audiograb/internal/media/audio"
	"audiograb/internal/services"
)

type infoOutput struct {
	Title           string            `json:"title"`
	DurationSeconds float64           `json:"duration"`
	Uploader        string            `json:"uploader"`
	ViewCount       int64             `json:"view_count"`
	Streams         []infoStream      `json:"streams"`
	Picks           map[string]string `json:"picks"`
}

type infoStream struct {
	FormatID    string  `json:"format_id"`
	Codec       string  `json:"codec"`
	Ext         string  `json:"ext"`
	BitrateKbps float64 `json:"bitrate_kbps"`
	AudioOnly   bool    `json:"audio_only"`
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "info <url>",
		Short: "Show metadata and audio streams for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := media.ValidateURL(args[0]); err != nil {
				return fmt.Errorf("info: %s", services.PublicMessage(err))
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
			meta, err := components.Orchestrator.Describe(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("info: %s", services.PublicMessage(err))
			}

			output := buildInfoOutput(meta)
			if asJSON {
				return writeJSON(cmd, output)
			}
			renderInfo(cmd, output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level")
	return cmd
}

func buildInfoOutput(meta media.Metadata) infoOutput {
	output := infoOutput{
		Title:           meta.Title,
		DurationSeconds: meta.DurationSeconds,
		Uploader:        meta.Uploader,
		ViewCount:       meta.ViewCount,
		Streams:         make([]infoStream, 0, len(meta.Streams)),
		Picks:           map[string]string{},
	}
	for _, s := range meta.Streams {
		output.Streams = append(output.Streams, infoStream{
			FormatID:    s.FormatID,
			Codec:       s.Codec,
			Ext:         s.Ext,
			BitrateKbps: s.BitrateKbps,
			AudioOnly:   s.AudioOnly,
		})
	}
	for _, tier := range media.Tiers() {
		if sel, err := audio.Select(meta.Streams, tier); err == nil {
			output.Picks[tier.String()] = sel.Stream.FormatID
		}
	}
	return output
}

func renderInfo(cmd *cobra.Command, output infoOutput) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:    %s\n", output.Title)
	fmt.Fprintf(out, "Uploader: %s\n", output.Uploader)
	fmt.Fprintf(out, "Duration: %s\n", (time.Duration(output.DurationSeconds) * time.Second).String())
	fmt.Fprintf(out, "Views:    %d\n", output.ViewCount)
	if len(output.Streams) == 0 {
		fmt.Fprintln(out, "No audio streams available")
		return
	}

	rows := make([][]string, 0, len(output.Streams))
	for _, s := range output.Streams {
		var tiers []byte
		for _, tier := range media.Tiers() {
			if output.Picks[tier.String()] == s.FormatID {
				if len(tiers) > 0 {
					tiers = append(tiers, ',')
				}
				tiers = append(tiers, tier.String()...)
			}
		}
		bitrate := "?"
		if s.BitrateKbps > 0 {
			bitrate = strconv.FormatFloat(s.BitrateKbps, 'f', 1, 64)
		}
		rows = append(rows, []string{s.FormatID, s.Codec, s.Ext, bitrate, yesNo(s.AudioOnly), string(tiers)})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Format", "Codec", "Ext", "Kbps", "Audio only", "Picked for"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}
