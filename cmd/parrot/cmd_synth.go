package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nadzzz/parrot/internal/message"
)

type synthOptions struct {
	text     string
	output   string
	voice    string
	language string
	provider string
	format   string
	speed    float64
}

func newSynthCommand(configFile *string) *cobra.Command {
	var opts synthOptions

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to an audio file without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.text) == "" {
				return errors.New("--text is required")
			}
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			format := opts.format
			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(opts.output), ".")
			}
			req := message.SpeechRequest{
				Input:    opts.text,
				Voice:    opts.voice,
				Language: opts.language,
				Provider: opts.provider,
				Format:   format,
			}
			if cmd.Flags().Changed("speed") {
				req.Speed = &opts.speed
			}

			out, err := a.dispatcher.Speak(cmd.Context(), req.ToRequest())
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.output, out.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", opts.output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %.2fs via %s\n",
				opts.output, out.MIMEType, out.Duration(), out.Provider)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.text, "text", "", "text to speak")
	f.StringVarP(&opts.output, "output", "o", "speech.wav", "output file")
	f.StringVar(&opts.voice, "voice", "", "provider-specific voice id")
	f.StringVar(&opts.language, "language", "", "language tag, e.g. sv-SE")
	f.StringVar(&opts.provider, "provider", "", "force a provider (kokoro, apple_say, xtts)")
	f.StringVar(&opts.format, "format", "", "wav or mp3 (default: from the output extension)")
	f.Float64Var(&opts.speed, "speed", 1, "playback speed multiplier")
	return cmd
}
