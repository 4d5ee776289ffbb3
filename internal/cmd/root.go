// Package cmd implements the twooter command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/khanasif1/twooter/internal/auth"
	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/gateway"
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/session"
	"github.com/khanasif1/twooter/internal/store"
	"github.com/khanasif1/twooter/internal/tracing"
	"github.com/khanasif1/twooter/internal/twooter"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var userOverride string

var rootCmd = &cobra.Command{
	Use:   "twooter",
	Short: "Bot toolkit for the Twooter social platform",
	Long: `twooter authenticates a bot account against the Twooter API and drives it:
posting, replying, threads, likes and reposts, feed reads, and automated
campaigns built from press releases and trending hashtags.

Configuration comes from TWOOTER_* environment variables or a .env file.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userOverride, "user", "", "Bot username (overrides TWOOTER_BOT_USERNAME)")
}

// app holds everything one command invocation needs.
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	store     store.CredentialStore
	session   *session.Session
	gateway   *gateway.Client
	validator *auth.Validator
	auth      *auth.Authenticator
	client    *twooter.Client
	shutdown  func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if userOverride != "" {
		cfg.Bot.Username = userOverride
	}

	logger := logging.New(cfg)

	if err := config.ResolveSecrets(cfg, logger); err != nil {
		return nil, err
	}
	if err := metrics.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	shutdown, err := tracing.Init(&cfg.Observability, logging.Version(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	sess := session.New()
	gw := gateway.NewFromConfig(cfg, sess, logger)
	api := auth.NewAPI(gw)
	validator := auth.NewValidator(api, st, sess, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		session:   sess,
		gateway:   gw,
		validator: validator,
		auth:      auth.NewAuthenticator(api, validator, st, sess, cfg.Auth.LoginPolicy, logger),
		client:    twooter.New(gw),
		shutdown:  shutdown,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close credential store")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to shutdown tracing")
	}
}

// login runs the full authentication fallback for the configured bot.
func (a *app) login(ctx context.Context) (*models.ProfileResult, error) {
	return a.auth.Authenticate(ctx, auth.IdentityFromConfig(a.cfg.Bot), auth.IntentsFromConfig(a.cfg.Team))
}

// run builds the app, authenticates when needed and prints fn's result as JSON.
func run(cmd *cobra.Command, needSession bool, fn func(ctx context.Context, a *app) (interface{}, error)) error {
	ctx, span := tracing.StartSpan(cmd.Context(), "twooter.cmd."+cmd.Name())
	defer span.End()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if needSession {
		if _, err := a.login(ctx); err != nil {
			tracing.RecordError(span, err)
			return err
		}
	}

	out, err := fn(ctx, a)
	if err != nil {
		tracing.RecordError(span, err)
		a.logger.WithError(err).WithField("code", apperrors.CodeOf(err)).Debug("Command failed")
		return err
	}
	if out == nil {
		return nil
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewAppErrorf(apperrors.CodeBadRequest, err, "invalid post id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
