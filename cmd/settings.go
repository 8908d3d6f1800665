package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/soundscribe/internal/config"
	"github.com/jfmyers9/soundscribe/internal/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show scrobble settings",
	Long: `Show the scrobble settings shared with the page overlay.

These are the same settings served on GET /settings by the daemon.`,
	RunE: runSettings,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change scrobble settings",
	Long: `Change one or more scrobble settings. Only the flags you pass are changed.

The threshold is the fraction of a track that must be listened to before it
is scrobbled, and is clamped to the range 0.01 to 1.0.`,
	Example: `  soundscribe settings set --threshold 0.7
  soundscribe settings set --now-playing=false`,
	RunE: runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().Float64("threshold", store.DefaultThreshold, "Fraction of the track to listen to before scrobbling")
	settingsSetCmd.Flags().Bool("scrobble", true, "Enable scrobbling")
	settingsSetCmd.Flags().Bool("now-playing", true, "Enable now playing updates")
	settingsSetCmd.Flags().Bool("notifications", true, "Enable desktop notifications on scrobble")
}

func runSettings(cmd *cobra.Command, args []string) error {
	settings, closeDB, err := openSettings()
	if err != nil {
		return err
	}
	defer closeDB()

	current, err := settings.Get(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	printSettings(os.Stdout, current)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	patch, err := patchFromFlags(cmd)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("nothing to change, pass at least one flag")
	}

	settings, closeDB, err := openSettings()
	if err != nil {
		return err
	}
	defer closeDB()

	updated, err := settings.Update(context.Background(), patch)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	printSettings(os.Stdout, updated)
	return nil
}

// patchFromFlags builds a patch from the flags the user actually passed.
func patchFromFlags(cmd *cobra.Command) (store.SettingsPatch, error) {
	var patch store.SettingsPatch
	flags := cmd.Flags()

	if flags.Changed("threshold") {
		v, err := flags.GetFloat64("threshold")
		if err != nil {
			return patch, err
		}
		patch.Threshold = &v
	}

	bools := []struct {
		name string
		dst  **bool
	}{
		{"scrobble", &patch.EnableScrobble},
		{"now-playing", &patch.EnableNowPlaying},
		{"notifications", &patch.EnableNotifications},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		v, err := flags.GetBool(b.name)
		if err != nil {
			return patch, err
		}
		*b.dst = &v
	}

	return patch, nil
}

func openSettings() (*store.SettingsStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	return store.NewSettingsStore(db), func() { _ = db.Close() }, nil
}

func printSettings(w io.Writer, s store.Settings) {
	fmt.Fprintf(w, "Threshold:       %.0f%%\n", s.Threshold*100)
	fmt.Fprintf(w, "Scrobbling:      %s\n", onOff(s.EnableScrobble))
	fmt.Fprintf(w, "Now playing:     %s\n", onOff(s.EnableNowPlaying))
	fmt.Fprintf(w, "Notifications:   %s\n", onOff(s.EnableNotifications))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
