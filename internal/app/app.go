package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/auth"
	"github.com/vibechat/relay/internal/config"
	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/store"
	"github.com/vibechat/relay/internal/store/sqlite"
	transporthttp "github.com/vibechat/relay/internal/transport/http"
)

// identityResolver bridges the auth service into the gateway's admission
// interface. Tokens of deactivated accounts resolve to an error.
type identityResolver struct {
	auth  *auth.Service
	store store.Store
}

func (r identityResolver) ResolveIdentity(ctx context.Context, token string) (core.Identity, error) {
	claims, err := r.auth.ValidateAccess(token)
	if err != nil {
		return core.Identity{}, err
	}
	user, err := r.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return core.Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return core.Identity{}, auth.ErrAccountDisabled
	}
	return core.Identity{UserID: user.ID, Username: user.Username}, nil
}

// App wires together storage, auth, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DBPath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	// One registry backs both gateways: a publish on either endpoint
	// reaches every subscriber of the channel, room or inbox alike.
	registry := core.NewRegistry()
	roomGateway := core.NewGateway(registry, core.OpenAdmission{}, logger)
	inboxGateway := core.NewGateway(registry, core.TokenAdmission{
		Resolver: identityResolver{auth: authService, store: st},
	}, logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Store:        st,
		Auth:         authService,
		RoomGateway:  roomGateway,
		InboxGateway: inboxGateway,
		Registry:     registry,
		Ready:        st.Ping,
		Cfg:          cfg,
		Log:          logger,
	})

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
