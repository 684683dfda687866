package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moviescrud/backend/internal/client"
	"github.com/moviescrud/backend/internal/config"
	"github.com/moviescrud/backend/internal/events"
	"github.com/moviescrud/backend/internal/models"
	"github.com/moviescrud/backend/internal/session"
)

type clientOptions struct {
	apiURL      string
	sessionFile string
}

// run loads the persisted session, runs fn with a client bound to it and
// persists whatever session the client ends up with.
func (o *clientOptions) run(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, c *client.Client, logger *slog.Logger) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	if o.apiURL != "" {
		cfg.ClientAPIURL = o.apiURL
	}

	path := o.sessionFile
	if path == "" {
		if path, err = defaultSessionFile(); err != nil {
			return err
		}
	}
	saved, err := readSession(path)
	if err != nil {
		return err
	}

	c := client.New(cfg.ClientAPIURL, client.Options{Logger: logger, Session: saved})
	runErr := fn(cmd.Context(), cfg, c, logger)
	if err := writeSession(path, c.Session()); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func clientCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running API as a signed in user",
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", "", "API base URL (defaults to MOVIES_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.sessionFile, "session-file", "", "Where the session is kept between commands")

	cmd.AddCommand(
		signupCmd(opts),
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		favoriteCmd(opts),
		playlistAddCmd(opts),
		playlistShowCmd(opts),
	)
	return cmd
}

func passwordFlag(cmd *cobra.Command, password *string) {
	cmd.Flags().StringVarP(password, "password", "p", "", "Account password (defaults to MOVIES_PASSWORD)")
}

func resolvePassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("MOVIES_PASSWORD"); env != "" {
		return env, nil
	}
	return "", errors.New("a password is required (--password or MOVIES_PASSWORD)")
}

func signupCmd(opts *clientOptions) *cobra.Command {
	var password, username string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, _ *slog.Logger) error {
				s, err := c.SignUp(ctx, args[0], pw, username)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", s.Identity.Email)
				return nil
			})
		},
	}
	passwordFlag(cmd, &password)
	cmd.Flags().StringVar(&username, "username", "", "Username for the profile")
	return cmd
}

func loginCmd(opts *clientOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email-or-username>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, _ *slog.Logger) error {
				s, err := c.SignIn(ctx, args[0], pw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", s.Identity.Email)
				return nil
			})
		},
	}
	passwordFlag(cmd, &password)
	return cmd
}

func logoutCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, logger *slog.Logger) error {
				if err := c.SignOut(ctx); err != nil {
					logger.Warn("server side sign out failed", "error", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func whoamiCmd(opts *clientOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Resolve the session and profile the way an app shell does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, cfg config.Config, c *client.Client, logger *slog.Logger) error {
				return whoami(ctx, cmd.OutOrStdout(), cfg, c, logger, watch)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and print profile changes (requires MOVIES_NATS_URL)")
	return cmd
}

func settled(s session.Snapshot) bool {
	return !s.Loading()
}

func whoami(ctx context.Context, out io.Writer, cfg config.Config, c *client.Client, logger *slog.Logger, watch bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	machine := session.NewMachine(session.NewStore(), c, c, session.Options{
		MaxAttempts:    cfg.Profile.MaxAttempts,
		AttemptTimeout: cfg.Profile.AttemptTimeout,
		InitialBackoff: cfg.Profile.InitialBackoff,
		Logger:         logger,
	})
	go func() { _ = machine.Run(ctx) }()
	defer client.Attach(ctx, c, machine)()

	snap, err := machine.Store().WaitFor(ctx, settled)
	if err != nil {
		return err
	}
	printSnapshot(out, snap)
	if !watch {
		return nil
	}
	if cfg.NATSURL == "" {
		return errors.New("whoami --watch: MOVIES_NATS_URL is not set")
	}

	bus, err := events.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer bus.Close()
	unsubscribe, err := client.ForwardProfileUpdates(ctx, bus, machine)
	if err != nil {
		return err
	}
	defer unsubscribe()

	defer machine.Store().Subscribe(func(s session.Snapshot) {
		if settled(s) && s.DisplayName() != snap.DisplayName() {
			snap = s
			printSnapshot(out, s)
		}
	})()
	<-ctx.Done()
	return nil
}

func printSnapshot(out io.Writer, s session.Snapshot) {
	identity, ok := s.Identity()
	if !ok {
		fmt.Fprintln(out, "not signed in")
		if s.SessionErr != nil {
			fmt.Fprintf(out, "session error: %v\n", s.SessionErr)
		}
		return
	}
	fmt.Fprintf(out, "%s <%s> %s\n", s.DisplayName(), identity.Email, strings.ToLower(s.ProfileStatus.String()))
	if s.ProfileErr != nil {
		fmt.Fprintf(out, "profile error: %v\n", s.ProfileErr)
	}
}

func favoriteCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <movie-id>",
		Short: "Toggle a movie in your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, _ *slog.Logger) error {
				movie, err := c.GetMovie(ctx, args[0])
				if err != nil {
					return err
				}
				surface := client.NewFavoriteSurface(c, 0)
				surface.Seed([]models.MovieView{movie})
				favorited, err := surface.Toggle(ctx, movie.ID)
				if err != nil {
					return err
				}
				verb := "removed from"
				if favorited {
					verb = "added to"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q %s favorites\n", movie.Title, verb)
				return nil
			})
		},
	}
}

func playlistAddCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "playlist-add <playlist-id> <movie-id>...",
		Short: "Add movies to one of your playlists; several ids are added all or nothing",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, _ *slog.Logger) error {
				playlistID, movieIDs := args[0], args[1:]
				var err error
				if len(movieIDs) == 1 {
					err = c.AddMovie(ctx, playlistID, movieIDs[0])
				} else {
					err = c.AddMovies(ctx, playlistID, movieIDs)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d movie(s)\n", len(movieIDs))
				return nil
			})
		},
	}
}

func playlistShowCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "playlist-show <playlist-id>",
		Short: "List the movies of a playlist in the order they were added",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, _ config.Config, c *client.Client, _ *slog.Logger) error {
				details, err := c.ListForPlaylist(ctx, args[0])
				if err != nil {
					return err
				}
				printPlaylist(cmd.OutOrStdout(), details)
				return nil
			})
		},
	}
}

func printPlaylist(out io.Writer, d models.PlaylistDetails) {
	visibility := "private"
	if d.Playlist.IsPublic {
		visibility = "public"
	}
	fmt.Fprintf(out, "%s by %s (%s, %d movies)\n", d.Playlist.Title, d.OwnerUsername, visibility, len(d.Movies))
	for i, m := range d.Movies {
		star := " "
		if m.IsFavorited {
			star = "*"
		}
		year := ""
		if m.Year != nil {
			year = fmt.Sprintf(" (%d)", *m.Year)
		}
		fmt.Fprintf(out, "%2d. %s %s%s\n", i+1, star, m.Title, year)
	}
}

func defaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, appName, "session.json"), nil
}

func readSession(path string) (*models.Session, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return &s, nil
}

// writeSession stores s with owner-only permissions, or removes the file when
// the client is signed out.
func writeSession(path string, s *models.Session) error {
	if s == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
