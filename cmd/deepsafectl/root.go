package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deepsafe/internal/client"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression/sqlitecache"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Cache   string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Flags fall back to DEEPSAFE_*
// environment variables.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.SetEnvPrefix("deepsafe")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "deepsafectl",
		Short:         "DeepSafe command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Server = v.GetString("server")
			opts.Cache = v.GetString("cache")
			opts.Format = v.GetString("format")
			opts.Verbose = v.GetBool("verbose")
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level := zerolog.WarnLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "API base URL")
	flags.String("cache", defaultCachePath(), "local cache database")
	flags.String("format", "text", "output format (json|text)")
	flags.BoolP("verbose", "v", false, "verbose output")
	_ = v.BindPFlags(flags)

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewProgressCommand(opts))
	cmd.AddCommand(NewDailyCommand(opts))
	cmd.AddCommand(NewShopCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewMigrateCommand())

	return cmd
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "deepsafe.db"
	}
	return filepath.Join(dir, "deepsafe", "cache.db")
}

// session is an API client restored from the cached sign-in.
type session struct {
	client *client.Client
	cache  *sqlitecache.Cache
	userID string
}

func openCache(path string) (*sqlitecache.Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return sqlitecache.Open(path)
}

// restore loads the cached session and checks the access token, rotating it
// with the refresh token once if it has expired.
func restore(ctx context.Context, opts *RootOptions) (*session, error) {
	cache, err := openCache(opts.Cache)
	if err != nil {
		return nil, err
	}
	stored, ok, err := cache.LoadSession(ctx)
	if err != nil {
		cache.Close()
		return nil, err
	}
	if !ok || stored.Server != opts.Server {
		cache.Close()
		return nil, fmt.Errorf("not signed in to %s, run deepsafectl login", opts.Server)
	}

	c := client.New(opts.Server, client.WithToken(stored.AccessToken))
	if _, err := c.Me(ctx); err != nil {
		if result.KindOf(err) != result.KindUnauthorized {
			cache.Close()
			return nil, err
		}
		log.Debug().Msg("Access token expired, refreshing")
		sess, err := c.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("session expired, run deepsafectl login: %w", err)
		}
		stored.AccessToken, stored.RefreshToken = sess.AccessToken, sess.RefreshToken
		if err := cache.SaveSession(ctx, stored); err != nil {
			cache.Close()
			return nil, err
		}
	}
	return &session{client: c, cache: cache, userID: stored.UserID}, nil
}

// restoreOffline loads the cached session without contacting the server.
func restoreOffline(ctx context.Context, opts *RootOptions) (*session, error) {
	cache, err := openCache(opts.Cache)
	if err != nil {
		return nil, err
	}
	stored, ok, err := cache.LoadSession(ctx)
	if err != nil || !ok {
		cache.Close()
		if err == nil {
			err = fmt.Errorf("not signed in, run deepsafectl login")
		}
		return nil, err
	}
	return &session{
		client: client.New(stored.Server, client.WithToken(stored.AccessToken)),
		cache:  cache,
		userID: stored.UserID,
	}, nil
}

func (s *session) Close() error { return s.cache.Close() }

// output writes v as JSON, or calls text for the text format.
func output(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
