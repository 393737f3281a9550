package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"deepsafe/internal/client"
	"deepsafe/internal/progression/sqlitecache"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Long: `Sign in with email and password. The session is stored in the local
cache; the password may also come from DEEPSAFE_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("DEEPSAFE_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			ctx := cmd.Context()
			c := client.New(rootOpts.Server)
			sess, err := c.SignIn(ctx, email, password)
			if err != nil {
				return err
			}

			cache, err := openCache(rootOpts.Cache)
			if err != nil {
				return err
			}
			defer cache.Close()

			// A different account must not see the previous one's mirror.
			if err := cache.Clear(ctx); err != nil {
				return err
			}
			if err := cache.SaveSession(ctx, sqlitecache.Session{
				Server:       rootOpts.Server,
				UserID:       sess.Profile.ID,
				AccessToken:  sess.AccessToken,
				RefreshToken: sess.RefreshToken,
			}); err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts, sess.Profile, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s\n", sess.Profile.Username)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, err := openCache(rootOpts.Cache)
			if err != nil {
				return err
			}
			defer cache.Close()

			stored, ok, err := cache.LoadSession(ctx)
			if err != nil {
				return err
			}
			if ok {
				c := client.New(stored.Server, client.WithToken(stored.AccessToken))
				if err := c.SignOut(ctx, stored.RefreshToken); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not revoke the session: %v\n", err)
				}
			}
			if err := cache.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
