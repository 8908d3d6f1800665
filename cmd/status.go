package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/soundscribe/internal/config"
	"github.com/jfmyers9/soundscribe/internal/daemon"
	"github.com/jfmyers9/soundscribe/internal/store"
)

const (
	trackColumnWidth  = 32
	artistColumnWidth = 24
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account, endpoint and recent submissions",
	Long: `Show the connected Last.fm account, the address the daemon is
listening on, and the most recent now playing and scrobble submissions.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of recent submissions to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := os.Stdout

	if !cfg.LastFM.HasCredentials() {
		fmt.Fprintln(out, "Account:   API credentials not configured")
	} else {
		session, err := store.NewSessionStore(sessionKV(cfg, db)).Load(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(out, "Account:   unknown (%v)\n", err)
		case session == nil:
			fmt.Fprintln(out, "Account:   not connected, run 'soundscribe auth'")
		default:
			fmt.Fprintf(out, "Account:   %s (since %s)\n", session.Username, session.LinkedAt.Local().Format(time.DateOnly))
		}
	}

	addr, err := db.Get(ctx, daemon.AddrKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(out, "Endpoint:  daemon not running")
	case err != nil:
		return fmt.Errorf("failed to read endpoint address: %w", err)
	default:
		fmt.Fprintf(out, "Endpoint:  http://%s\n", addr)
	}

	subs, err := db.History().Recent(ctx, statusLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printHistory(out, subs)
	return nil
}

func printHistory(w io.Writer, subs []store.Submission) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No submissions yet.")
		return
	}

	for _, s := range subs {
		result := "ok"
		if s.Error != "" {
			result = "failed: " + s.Error
		}
		fmt.Fprintf(w, "%s  %-11s  %s  %s  %s\n",
			s.CreatedAt.Local().Format("01-02 15:04"),
			s.Kind,
			padToWidth(s.TrackName, trackColumnWidth),
			padToWidth(s.Artist, artistColumnWidth),
			result,
		)
	}
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// If width <= 0, returns text unchanged.
// If text is longer than width, truncates with "..." suffix.
// If text is shorter than width, pads with spaces.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		// A wide rune may leave the cut one column short
		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		if resultWidth := runewidth.StringWidth(result); resultWidth < width {
			return result + strings.Repeat(" ", width-resultWidth)
		}
		return result
	}

	return text + strings.Repeat(" ", width-currentWidth)
}
