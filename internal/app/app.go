package app

import (
	"context"
	"fmt"
	"net/http"

	"chathub/internal/retention"
	"chathub/pkg/bridge"
	"chathub/pkg/config"
	"chathub/pkg/hub"
	"chathub/pkg/logger"
	"chathub/pkg/state"
	"chathub/pkg/store"
	"chathub/pkg/utils"
	"chathub/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st    *store.Store
	hub   *hub.Hub
	relay *bridge.Relay
	ret   *retention.Job
	srv   *http.Server
}

// New initializes resources that do not require a running context: the
// logger, state directories, the store, validation limits and the hub.
// Call Run to start the bridge, retention and the HTTP server.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.Format)

	if eff.DBPath == "" {
		return nil, fmt.Errorf("db path not set")
	}
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state layout: %w", err)
	}

	initValidation(eff)

	st, err := store.Open(state.StorePath(eff.DBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", eff.DBPath, err)
	}

	h := hub.New(st, hub.NewRegistry(), hub.Options{
		LifecycleBroadcastAll: eff.Config.LifecycleBroadcastAll(),
	})

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		hub:       h,
		ret:       retention.New(eff, st),
	}

	if eff.Config.Bridge.Enabled {
		b := eff.Config.Bridge
		a.relay = bridge.New(b.Addr, b.Password, b.DB, b.Channel)
		h.SetRelay(a.relay, utils.GenInstanceID())
	}

	return a, nil
}

// Run starts the bridge subscriber, the retention scheduler and the HTTP
// server, then blocks until ctx is canceled or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer logger.Sync()
	defer func() {
		if err := a.st.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}()

	if a.relay != nil {
		if err := a.relay.Ping(ctx); err != nil {
			return fmt.Errorf("bridge unreachable at %s: %w", a.eff.Config.Bridge.Addr, err)
		}
		a.relay.Start(ctx, a.hub)
		defer a.relay.Close()
	}

	cancelRet, err := a.ret.Start(ctx)
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	defer cancelRet()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.stopHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}

// initValidation installs the message shape limits from config.
func initValidation(eff config.EffectiveConfigResult) {
	l := validation.Limits{
		MaxTextLen:  eff.Config.Limits.MaxTextLen,
		MaxFileName: eff.Config.Limits.MaxFileName,
	}
	if maxFile, err := eff.Config.MaxFileBytes(); err != nil {
		logger.Warn("max_file_size_invalid", "value", eff.Config.Limits.MaxFileSize, "error", err)
	} else {
		l.MaxFileBytes = maxFile
	}
	validation.SetLimits(l)
}
