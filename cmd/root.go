/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "soundscribe",
	Short: "SoundCloud scrobbler for Last.fm",
	Long: `soundscribe scrobbles what you play on SoundCloud to Last.fm.

A small script injected into the SoundCloud page reports playback to a
local endpoint every few seconds. The daemon tracks the current track,
announces it as "now playing" and scrobbles it once you have listened
past the configured threshold.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
