package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chathub/pkg/api"
	"chathub/pkg/auth"
	"chathub/pkg/banner"
	"chathub/pkg/logger"
)

const shutdownGrace = 10 * time.Second

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// startHTTP builds the handler stack, starts the HTTP server in a
// goroutine and returns a channel carrying any fatal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	root := http.NewServeMux()
	root.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	root.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", api.New(api.Deps{
		Hub:          a.hub,
		Store:        a.st,
		Cfg:          a.eff.Config,
		RunRetention: a.retentionTrigger(),
	}))

	cfg := a.eff.Config
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
		AllowUnauth:    cfg.Security.APIKeys.AllowUnauth,
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	wrapped := auth.AuthenticateRequestMiddleware(secCfg)(root)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := cfg.Server.TLS.CertFile
		key := cfg.Server.TLS.KeyFile
		logger.Info("http_listening", "addr", a.eff.Addr, "tls", cert != "" && key != "")
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

// stopHTTP drains in-flight requests before closing the listener.
func (a *App) stopHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_forced", "error", err)
		_ = a.srv.Close()
	}
}

// retentionTrigger exposes the scheduler's immediate run to the admin
// API, or nil when retention is disabled.
func (a *App) retentionTrigger() func() (int, error) {
	if !a.eff.Config.Retention.Enabled {
		return nil
	}
	return a.ret.RunImmediate
}
