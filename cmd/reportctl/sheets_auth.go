package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

type sheetsAuthFlags struct {
	clientFile string
	tokenFile  string
	port       string
	timeout    time.Duration
}

// newSheetsAuthCommand runs the one-off OAuth consent flow that produces the
// token report-worker uses for the spreadsheet export.
func newSheetsAuthCommand() *cobra.Command {
	flags := &sheetsAuthFlags{}
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize spreadsheet export and save the OAuth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientJSON, err := readClientSecret(flags.clientFile)
			if err != nil {
				return err
			}
			cfg, err := google.ConfigFromJSON(clientJSON, sheets.SpreadsheetsScope)
			if err != nil {
				return fmt.Errorf("oauth config: %w", err)
			}
			// The OAuth client must list this redirect URI.
			cfg.RedirectURL = "http://localhost:" + flags.port + "/callback"

			codeCh := make(chan string, 1)
			errCh := make(chan error, 1)
			mux := http.NewServeMux()
			mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
				if e := r.URL.Query().Get("error"); e != "" {
					http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
					sendErr(errCh, fmt.Errorf("authorization denied: %s", e))
					return
				}
				fmt.Fprintln(w, "You may close this window and return to the terminal.")
				select {
				case codeCh <- r.URL.Query().Get("code"):
				default:
				}
			})
			srv := &http.Server{Addr: ":" + flags.port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					sendErr(errCh, err)
				}
			}()
			defer srv.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))

			ctx := cmd.Context()
			var code string
			select {
			case code = <-codeCh:
			case err := <-errCh:
				return err
			case <-time.After(flags.timeout):
				return errors.New("authorization timed out")
			case <-ctx.Done():
				return ctx.Err()
			}

			tok, err := cfg.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			if err := writeToken(flags.tokenFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved token to %s\n", flags.tokenFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.clientFile, "client-file", os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"), "OAuth client secret file (GOOGLE_OAUTH_CLIENT_JSON is used when empty)")
	cmd.Flags().StringVar(&flags.tokenFile, "token-file", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "Where to write the token")
	cmd.Flags().StringVar(&flags.port, "port", envOr("OAUTH_REDIRECT_PORT", "8085"), "Local port for the OAuth redirect")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Minute, "How long to wait for the browser")
	return cmd
}

func readClientSecret(file string) ([]byte, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	}
	if inline := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); inline != "" {
		return []byte(inline), nil
	}
	return nil, errors.New("set --client-file, GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON")
}

func writeToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
