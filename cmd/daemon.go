package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/soundscribe/internal/config"
	"github.com/jfmyers9/soundscribe/internal/daemon"
	"github.com/jfmyers9/soundscribe/internal/notify"
	"github.com/jfmyers9/soundscribe/internal/scrobbler"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonDataDir  string
	daemonPort     int
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scrobbling daemon",
	Long: `Run the scrobbling daemon that receives playback reports and scrobbles tracks to Last.fm.

The daemon will:
- Listen on a loopback port for playback reports from the page script
- Track listening time, ignoring pauses and seeks backwards
- Announce each new track as "now playing"
- Scrobble a track once the listened threshold (50% by default) is reached
- Handle graceful shutdown on SIGINT/SIGTERM

Failed submissions are logged and recorded, never retried.
The bound address is printed on startup and shown by 'soundscribe status'.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for the database (default: $XDG_DATA_HOME/soundscribe)")
	daemonCmd.Flags().IntVar(&daemonPort, "port", 0, "Ingestion port on 127.0.0.1 (default: ephemeral)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if daemonDataDir != "" {
		cfg.DataDir = daemonDataDir
	}
	if cmd.Flags().Changed("port") {
		cfg.Ingest.Port = daemonPort
	}

	logger, closeLog := setupLogger(daemonLogFile, daemonLogLevel)
	defer closeLog()

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting soundscribe daemon")

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	// Missing credentials only disable submissions.
	var submitter daemon.Submitter
	client, err := newScrobbler(cfg, logger)
	switch {
	case err == nil:
		submitter = client
	case errors.Is(err, scrobbler.ErrNoCredentials):
		logger.Info().Msg("Last.fm API credentials not configured, run 'soundscribe auth' to set them up")
	default:
		_ = db.Close()
		return err
	}

	notifier, err := notify.New()
	if err != nil {
		logger.Debug().Err(err).Msg("Notifications unavailable")
		notifier = notify.Nop()
	}

	d, err := daemon.New(daemon.Config{
		IngestPort:        cfg.Ingest.Port,
		IngestReadTimeout: cfg.Ingest.ReadTimeout,
		Sessions:          sessionKV(cfg, db),
	}, db, submitter, notifier, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// setupLogger creates a logger with the specified configuration. The
// returned func closes the log file, if one was opened.
func setupLogger(logFile, logLevel string) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Set up output
	output := os.Stderr
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			output = f
			closeFn = func() { _ = f.Close() }
		}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger, closeFn
}
