package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/soundscribe/internal/auth"
	"github.com/jfmyers9/soundscribe/internal/config"
	"github.com/jfmyers9/soundscribe/internal/store"
)

const authTimeout = 5 * time.Minute

var (
	authCallbackURL string
	authNoBrowser   bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect your Last.fm account",
	Long: `Connect your Last.fm account to enable scrobbling.

This command will guide you through the Last.fm authentication process:
1. You'll be prompted to enter your Last.fm API key and secret
2. Your browser opens the Last.fm authorization page
3. Last.fm redirects back to a local callback with a one-time token
4. The token is exchanged for a session, which is stored for the daemon

When the local callback cannot be started, paste the URL Last.fm
redirected to. A soundscribe:// URL handed over by the OS can be passed
with --url.

You can get API credentials from: https://www.last.fm/api/account/create`,
	RunE: runAuth,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Disconnect your Last.fm account",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(logoutCmd)

	authCmd.Flags().StringVar(&authCallbackURL, "url", "", "Complete authorization with a callback URL (soundscribe://auth?token=...)")
	authCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
}

func runAuth(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if authCallbackURL == "" {
		if err := promptCredentials(cfg, reader); err != nil {
			return err
		}
	}

	logger := cliLogger()
	client, err := newScrobbler(cfg, logger)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	flow := auth.NewFlow(client, store.NewSessionStore(sessionKV(cfg, db)), logger)

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	var session store.Session
	if authCallbackURL != "" {
		session, err = connectWithURL(ctx, flow, cfg, authCallbackURL)
	} else {
		session, err = connectInteractive(ctx, flow, cfg, reader)
	}
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Printf("\n✓ Connected as %s\n", session.Username)
	fmt.Println("\nYou can now use 'soundscribe daemon' to start scrobbling.")
	return nil
}

// promptCredentials asks for the API key and secret and saves them.
func promptCredentials(cfg *config.Config, reader *bufio.Reader) error {
	fmt.Println("Last.fm Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can get API credentials from: https://www.last.fm/api/account/create")
	fmt.Println()

	if cfg.LastFM.HasCredentials() {
		fmt.Printf("Found existing API credentials.\n")
		fmt.Printf("API Key: %s\n", cfg.LastFM.APIKey)
		fmt.Print("\nUse existing credentials? [Y/n]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "y"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response == "" || response == "y" || response == "yes" {
			return nil
		}
		cfg.LastFM.APIKey = ""
		cfg.LastFM.APISecret = ""
	}

	fmt.Print("Enter your Last.fm API Key: ")
	apiKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	cfg.LastFM.APIKey = strings.TrimSpace(apiKey)

	fmt.Print("Enter your Last.fm API Secret: ")
	apiSecret, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read API secret: %w", err)
	}
	cfg.LastFM.APISecret = strings.TrimSpace(apiSecret)

	if !cfg.LastFM.HasCredentials() {
		return fmt.Errorf("API key and secret are required")
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("✓ Credentials saved to %s/config.yaml\n", config.GetConfigDir())
	return nil
}

// connectInteractive uses the loopback callback, falling back to a pasted
// URL when the listener cannot be bound.
func connectInteractive(ctx context.Context, flow *auth.Flow, cfg *config.Config, reader *bufio.Reader) (store.Session, error) {
	loopback, err := auth.StartLoopback(cfg.Auth.CallbackPort, cliLogger())
	if err == nil {
		defer loopback.Shutdown()
		return flow.Connect(ctx, loopback, presentAuthURL)
	}

	fmt.Printf("Local callback unavailable (%v).\n", err)

	scheme := auth.NewSchemeReceiver(cfg.Auth.Scheme)
	return flow.Connect(ctx, scheme, func(authURL string) error {
		if err := presentAuthURL(authURL); err != nil {
			return err
		}
		return pasteCallbackURL(scheme, reader, os.Stdout)
	})
}

// pasteCallbackURL prompts until a pasted URL reaches the receiver. A URL
// without a token ends the prompt with ErrMissingToken; end of input ends
// it with an error.
func pasteCallbackURL(receiver *auth.SchemeReceiver, reader *bufio.Reader, out io.Writer) error {
	for {
		fmt.Fprint(out, "After authorizing, paste the URL you were redirected to: ")
		line, readErr := reader.ReadString('\n')

		if line = strings.TrimSpace(line); line != "" {
			err := receiver.Deliver(line)
			if err == nil || errors.Is(err, auth.ErrMissingToken) {
				return err
			}
			fmt.Fprintf(out, "Could not use that URL: %v\n", err)
		}

		if readErr != nil {
			return fmt.Errorf("no callback URL entered: %w", readErr)
		}
	}
}

// connectWithURL completes authorization from a scheme URL delivered by the OS.
func connectWithURL(ctx context.Context, flow *auth.Flow, cfg *config.Config, raw string) (store.Session, error) {
	receiver := auth.NewSchemeReceiver(cfg.Auth.Scheme)
	if err := receiver.Deliver(raw); err != nil {
		return store.Session{}, err
	}

	token, err := receiver.ReceiveToken(ctx)
	if err != nil {
		return store.Session{}, err
	}
	return flow.Complete(ctx, token)
}

func presentAuthURL(authURL string) error {
	if !authNoBrowser {
		if err := auth.OpenBrowser(authURL); err == nil {
			fmt.Println("\nYour browser has been opened to authorize soundscribe.")
			fmt.Printf("If it did not open, visit:\n\n  %s\n\n", authURL)
			return nil
		}
	}
	fmt.Println("\nPlease visit this URL to authorize soundscribe:")
	fmt.Printf("\n  %s\n\n", authURL)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	flow := auth.NewFlow(nil, store.NewSessionStore(sessionKV(cfg, db)), cliLogger())
	if err := flow.Disconnect(context.Background()); err != nil {
		return err
	}

	fmt.Println("✓ Disconnected from Last.fm")
	return nil
}
