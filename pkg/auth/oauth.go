// Package auth obtains authenticated HTTP clients for the Google APIs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LocalhostAuthPort is the port the local web server listens on to capture
// the OAuth redirect.
const LocalhostAuthPort = "6789"

const oobRedirect = "urn:ietf:wg:oauth:2.0:oob"

// Options locate the credential files. Subject is the user a service account
// acts for; it is required to send mail through a service account. Without
// Interactive a missing token is an error instead of a browser prompt.
type Options struct {
	CredentialsFile string
	TokenFile       string
	Subject         string
	Interactive     bool
	Logger          *log.Logger
}

// ErrNoToken is returned by GetClient when no token is cached and the
// browser flow is not allowed.
var ErrNoToken = errors.New("not authenticated")

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// GetClient returns an authenticated *http.Client. Service-account credentials
// are used directly; installed-app credentials load the cached token or start
// the browser flow when there is none.
func GetClient(ctx context.Context, opts Options, scopes []string) (*http.Client, error) {
	b, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", opts.CredentialsFile, err)
	}

	if credentialKind(b) == "service_account" {
		cfg, err := google.JWTConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account file: %w", err)
		}
		cfg.Subject = opts.Subject
		return cfg.Client(ctx), nil
	}

	config, err := GetConfig(b, scopes, opts.logger())
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(opts.TokenFile)
	if err != nil && !opts.Interactive {
		return nil, fmt.Errorf("%w: no token at %s, run `taskplan auth`", ErrNoToken, opts.TokenFile)
	}
	if err != nil {
		opts.logger().Printf("No existing token found at %s. Initiating web authorization flow...", opts.TokenFile)
		tok, err = getTokenFromWeb(ctx, config, opts.logger())
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(opts.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	return oauth2.NewClient(ctx, &savingTokenSource{
		src:  config.TokenSource(ctx, tok),
		path: opts.TokenFile,
		last: tok,
		log:  opts.logger(),
	}), nil
}

// Reauthorize removes the cached token and runs the browser flow again.
func Reauthorize(ctx context.Context, opts Options, scopes []string) error {
	opts.Interactive = true
	if err := os.Remove(opts.TokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", opts.TokenFile, err)
	}
	_, err := GetClient(ctx, opts, scopes)
	return err
}

// GetConfig parses installed-app credentials and pins the redirect URL to the
// local callback server.
func GetConfig(credentials []byte, scopes []string, logger *log.Logger) (*oauth2.Config, error) {
	config, err := google.ConfigFromJSON(credentials, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	redirect, err := normalizeRedirectURL(config.RedirectURL)
	if err != nil {
		logger.Printf("Warning: %v. Using it as is.", err)
		return config, nil
	}
	if redirect != config.RedirectURL {
		logger.Printf("Using RedirectURL %s", redirect)
	}
	config.RedirectURL = redirect
	return config, nil
}

// normalizeRedirectURL forces localhost callbacks and the out-of-band URN to
// LocalhostAuthPort. Other URLs are left untouched.
func normalizeRedirectURL(raw string) (string, error) {
	if raw == oobRedirect || raw == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, fmt.Errorf("could not parse RedirectURL '%s': %w", raw, err)
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		return raw, nil
	}
	u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	return u.String(), nil
}

// credentialKind reads the "type" field of a Google credentials file.
func credentialKind(b []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// getTokenFromWeb runs the authorization code flow through a local web server.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, logger *log.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		logger.Printf("Local server listening on %s for OAuth2 redirect...", config.RedirectURL)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	// AccessTypeOffline makes Google return a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize taskplan:\n%s\n", authURL)
	logger.Println("Waiting for authorization code...")

	select {
	case authCode := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exCtx, authCode)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

// savingTokenSource writes refreshed tokens back to the token file.
type savingTokenSource struct {
	src  oauth2.TokenSource
	path string
	last *oauth2.Token
	log  *log.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		s.log.Println("Token was refreshed. Saving new token to file.")
		if err := saveToken(s.path, tok); err != nil {
			s.log.Printf("Warning: %v", err)
		}
		s.last = tok
	}
	return tok, nil
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes an oauth2.Token readable only by the owner.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to write OAuth token to %s: %w", path, err)
	}
	return nil
}
