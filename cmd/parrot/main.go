// Parrot is a speech-synthesis sidecar. It routes text to a neural voice
// pipeline, the operating system's speech command or a voice-cloning model
// and returns normalized, encoded audio.
//
// Usage:
//
//	parrot serve [--config /path/to/parrot.yaml]
//	parrot voices [--rich]
//	parrot synth --text "Hello" -o hello.wav
//
// @title       parrot speech synthesis API
// @version     1.0
// @description Speech-synthesis sidecar with provider routing and an OpenAI-compatible speech endpoint.
// @BasePath    /
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "parrot",
		Short:         "Speech-synthesis sidecar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "",
		"path to config file (e.g. configs/parrot.local.yaml)")

	root.AddCommand(
		newServeCommand(&configFile),
		newVoicesCommand(&configFile),
		newSynthCommand(&configFile),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parrot %s (%s)\n", version, runtime.Version())
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
