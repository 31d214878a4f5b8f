package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/nadzzz/parrot/internal/message"
)

func newVoicesCommand(configFile *string) *cobra.Command {
	var rich bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Print the voice catalog as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printVoices(cmd.Context(), cmd.OutOrStdout(), a, rich)
		},
	}
	cmd.Flags().BoolVar(&rich, "rich", false, "list {id, provider, lang} across all providers")
	return cmd
}

func printVoices(ctx context.Context, w io.Writer, a *app, rich bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if rich {
		return enc.Encode(message.VoiceList{Voices: a.dispatcher.RichVoices(ctx)})
	}
	return enc.Encode(message.VoiceIDList{Voices: a.dispatcher.VoiceIDs(ctx)})
}
