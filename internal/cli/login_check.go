package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	rwportal "github.com/goliatone/go-rwportal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newLoginCheckCommand signs in against the configured API and verifies
// the issued token, the same round trip the login form makes.
func newLoginCheckCommand(opts *options) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login-check",
		Short: "Sign in to the RW API and verify the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			if username == "" {
				return fmt.Errorf("--username is required")
			}

			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			password, err := readPassword(opts.stdin)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			client, err := rwportal.NewClientFromConfig(cfg,
				rwportal.WithClientLogger(rwportal.NewSlogLogger(logger)),
				rwportal.WithDebug(cfg.Server.Debug),
			)
			if err != nil {
				return err
			}
			store := rwportal.NewSessionStore(
				rwportal.NewMemoryTokenStore(""),
				rwportal.NewAuthAPI(client, cfg),
				rwportal.WithSessionLogger(rwportal.NewSlogLogger(logger)),
			)

			ctx := cmd.Context()
			if _, err := store.Login(ctx, rwportal.Credentials{Username: username, Password: password}); err != nil {
				return fmt.Errorf("login: %s", rwportal.UserMessage(err))
			}

			session, err := store.Verify(ctx)
			if err != nil {
				return fmt.Errorf("verify: %s", rwportal.UserMessage(err))
			}
			if !session.IsAuthenticated() {
				return fmt.Errorf("token was issued but did not verify")
			}

			user := session.User
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s), role %s\n",
				user.DisplayName, user.Username, user.Role.Label())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

// readPassword reads without echo from a terminal and falls back to a
// plain line for pipes.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
