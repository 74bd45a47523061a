package server

import (
	"database/sql"
	"fmt"
	"time"

	"cargohold/internal/audit"
	"cargohold/internal/authority"
	"cargohold/internal/channel"
	"cargohold/internal/config"
	"cargohold/internal/credential"
	"cargohold/internal/logger"
	"cargohold/internal/storage"
	"cargohold/internal/transfer"
)

// App holds all application state and dependencies.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	ServiceDB *sql.DB
	StartedAt time.Time

	Audit     *audit.Recorder
	Authority *authority.Store
	Objects   *storage.ObjectStore
	Transfers *transfer.Index

	// Admin channel authorization. Parser and Gate are nil when no
	// credential material is configured; the channel endpoint then refuses
	// every upgrade.
	Parser   *credential.Parser
	Gate     *channel.Gate
	Registry *channel.Registry
}

// NewApp wires the application from its configuration and an open service
// database.
func NewApp(cfg *config.Config, log *logger.Logger, db *sql.DB) (*App, error) {
	objects, err := storage.NewObjectStore(cfg.WorkingDirectory, cfg.Transfer.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    log,
		ServiceDB: db,
		StartedAt: time.Now(),
		Audit:     audit.NewRecorder(db, log, cfg.Audit.MaxLogSizeBytes, cfg.Audit.PurgePercentage),
		Authority: authority.NewStore(db),
		Objects:   objects,
		Transfers: transfer.NewIndex(db),
		Registry:  channel.NewRegistry(),
	}

	if cfg.CredentialConfigured() {
		parser, err := credential.NewParserFromConfigFile(
			cfg.Credential.Algorithm,
			cfg.Credential.PublicKeyPath,
			cfg.Credential.SharedSecret,
			cfg.Credential.Issuer,
			cfg.Credential.Audience,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential parser: %w", err)
		}
		app.Parser = parser
		app.Gate = channel.NewGate(channel.GateConfig{
			Parser:          parser,
			Authority:       app.Authority,
			Events:          app.Audit,
			Logger:          log,
			PrivilegedRoles: cfg.AdminChannel.PrivilegedRoles,
			Retry:           app.retryPolicy(),
		})
	} else {
		log.Warn("No credential material configured; admin channel is disabled")
	}

	return app, nil
}

// retryPolicy builds the authority lookup retry policy from config.
func (a *App) retryPolicy() channel.RetryPolicy {
	return channel.RetryPolicy{
		LookupTimeout: a.Config.AdminChannel.LookupTimeout(),
		Attempts:      a.Config.AdminChannel.LookupRetries,
		Backoff:       a.Config.AdminChannel.RetryBackoff(),
	}
}

// supervisorConfig builds the per-session supervision policy from config.
func (a *App) supervisorConfig() channel.SupervisorConfig {
	privileged := make(map[string]struct{}, len(a.Config.AdminChannel.PrivilegedRoles))
	for _, role := range a.Config.AdminChannel.PrivilegedRoles {
		privileged[role] = struct{}{}
	}
	return channel.SupervisorConfig{
		VerifyInterval:  a.Config.AdminChannel.VerifyInterval(),
		Retry:           a.retryPolicy(),
		PrivilegedRoles: privileged,
	}
}

// ChannelEnabled reports whether the admin channel can accept connections.
func (a *App) ChannelEnabled() bool {
	return a.Gate != nil
}
