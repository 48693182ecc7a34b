package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/client"
	"github.com/habedi/salonctl/config"
	"github.com/habedi/salonctl/db"
	"github.com/rs/zerolog/log"
)

// app is the wired request pipeline for one CLI run.
type app struct {
	cfg         config.Config
	store       *auth.CredentialStore
	client      *client.Client
	coordinator *auth.Coordinator
	service     *auth.Service

	unsubscribe func()
	logCloser   io.Closer
}

func newApp(ctx context.Context, cfg config.Config, notices io.Writer) (*app, error) {
	logCloser := setupLogging(cfg)

	db.Path = cfg.DBPath()
	if err := db.InitDB(); err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	key, err := db.LoadOrCreateKey(cfg.KeyPath())
	if err != nil {
		_ = db.CloseDB()
		return nil, fmt.Errorf("failed to load secret store key: %w", err)
	}
	sealer, err := db.NewSealer(key)
	if err != nil {
		_ = db.CloseDB()
		return nil, err
	}
	store := auth.NewCredentialStore(db.NewSecretRepository(db.GetDB(), sealer))

	deviceID, err := store.DeviceID(ctx)
	if err != nil {
		_ = db.CloseDB()
		return nil, err
	}

	augmenter := client.NewAugmenter(store, client.Metadata{
		AppVersion: cfg.AppVersion,
		Platform:   cfg.Platform,
		DeviceID:   deviceID,
	})
	c := client.New(client.NewHTTPTransport(cfg.BaseURL, cfg.Timeout), augmenter, client.WithRefreshPath(cfg.RefreshPath))

	paths := auth.DefaultPaths()
	paths.Refresh = cfg.RefreshPath
	api := auth.NewAPI(c, paths)
	invalidator := auth.NewInvalidator(store)
	coordinator := auth.NewCoordinator(store, api, invalidator, cfg.RefreshTimeout)
	c.SetRecoverer(coordinator)

	unsubscribe := invalidator.Subscribe(func(ev auth.Invalidation) {
		if ev.Reason == auth.ReasonLogout {
			return
		}
		fmt.Fprintln(notices, "Your session has ended. Please log in again with 'salonctl login'.")
	})

	log.Debug().Str("base_url", cfg.BaseURL).Str("device_id", deviceID).Msg("Application initialized")
	return &app{
		cfg:         cfg,
		store:       store,
		client:      c,
		coordinator: coordinator,
		service:     auth.NewService(api, store, invalidator),
		unsubscribe: unsubscribe,
		logCloser:   logCloser,
	}, nil
}

func (a *app) close() error {
	a.unsubscribe()
	// Let a background profile fetch finish before the database goes away.
	_ = a.service.WaitProfile(context.Background())
	err := db.CloseDB()
	if a.logCloser != nil {
		err = errors.Join(err, a.logCloser.Close())
	}
	return err
}
