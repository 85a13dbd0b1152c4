package server

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/handlers"
	"github.com/accountd/accountd/internal/handlers/admin"
	"github.com/accountd/accountd/internal/handlers/authn"
	"github.com/accountd/accountd/internal/handlers/users"
	"github.com/accountd/accountd/internal/httpcond"
	"github.com/accountd/accountd/internal/middleware"
	"github.com/accountd/accountd/internal/store"
)

type serverInfo struct {
	server *http.Server
	logger *zerolog.Logger
}

type Server struct {
	servers []serverInfo
	logger  *zerolog.Logger
}

func New(
	conf *config.Config,
	userStore *store.Users,
	authenticator *auth.Authenticator,
	logger *zerolog.Logger,
	metricsRegistry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) *Server {
	srv := Server{logger: logger}

	policies := PoliciesFromConfig(conf)

	srv.servers = append(
		srv.servers,
		setupAPI(conf, userStore, authenticator, policies, logger, metricsRegistry),
	)

	if conf.AdminInterface != "" {
		srv.servers = append(
			srv.servers,
			setupAdminInterface(conf, userStore, policies, logger, metricsRegistry),
		)
	} else if conf.EnableProfiling {
		logger.Warn().Msg("Profiling requested, but the admin interface is disabled. Ignoring.")
	}

	return &srv
}

func (s *Server) ListenAndServe() error {
	errChan := make(chan error)
	defer close(errChan)

	for _, srv := range s.servers {
		go func() {
			srv.logger.Info().Str("address", srv.server.Addr).Msg("Starting server")
			err := srv.server.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error().Err(err).Msg("Server didn't come up properly")
				errChan <- err
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	select {
	case <-stop:
		s.logger.Info().Msg("Shutting down")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("At least one server is unhealthy, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	closingErrs := make(chan error)
	defer close(closingErrs)

	for _, srv := range s.servers {
		go func() {
			err := srv.server.Shutdown(ctx)
			if err != nil {
				srv.logger.Error().Err(err).Msg("Error shutting down the server")
			}
			closingErrs <- err
		}()
	}

	var lastErr error
	for range len(s.servers) {
		if err := <-closingErrs; err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// PoliciesFromConfig builds the cache policy table, overriding the default
// lifetimes with the configured ones.
func PoliciesFromConfig(conf *config.Config) httpcond.PolicyTable {
	policies := httpcond.DefaultPolicies()

	overrides := []struct {
		class  httpcond.ResourceClass
		maxAge int
	}{
		{httpcond.ClassOwnedByRequester, conf.CachePolicy.OwnedMaxAgeSeconds},
		{httpcond.ClassOwnedByOther, conf.CachePolicy.PublicMaxAgeSeconds},
		{httpcond.ClassCollection, conf.CachePolicy.CollectionMaxAgeSeconds},
		{httpcond.ClassSearchResult, conf.CachePolicy.SearchMaxAgeSeconds},
	}

	for _, override := range overrides {
		directives := policies[override.class]
		directives.MaxAge = time.Duration(override.maxAge) * time.Second
		policies[override.class] = directives
	}

	return policies
}

func setupAPI(
	conf *config.Config,
	userStore *store.Users,
	authenticator *auth.Authenticator,
	policies httpcond.PolicyTable,
	logger *zerolog.Logger,
	registry prometheus.Registerer,
) serverInfo {
	serviceName := "api"
	log := logger.With().Str("service", serviceName).Logger()

	handler := http.NewServeMux()
	authn.RegisterHandler(handler, userStore, authenticator, policies)
	users.RegisterHandler(handler, userStore, authenticator, httpcond.NewFingerprinter(), policies)

	return createServer(
		fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		handler,
		serviceName,
		&log,
		registry,
	)
}

func setupAdminInterface(
	conf *config.Config,
	userStore *store.Users,
	policies httpcond.PolicyTable,
	logger *zerolog.Logger,
	registry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) serverInfo {
	serviceName := "admin"
	log := logger.With().Str("service", serviceName).Logger()

	handler := http.NewServeMux()

	if conf.EnableProfiling {
		log.Info().
			Str("profilingUrl", conf.AdminInterface+"/-/pprof/").
			Msg("Enabling profiling")
		handlers.RegisterProfilingHandlers(handler, "/-/pprof/")
	}

	if conf.EnableMetrics {
		log.Info().
			Str("metricsUrl", conf.AdminInterface+"/metrics").
			Msg("Enabling metrics")
		handler.Handle(
			"GET /metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	admin.RegisterHandler(handler, userStore, policies)

	return createServer(conf.AdminInterface, handler, serviceName, &log, registry)
}

func createServer(
	address string,
	handler *http.ServeMux,
	serviceName string,
	log *zerolog.Logger,
	registry prometheus.Registerer,
) serverInfo {
	handler.HandleFunc("/", handlers.NotFound)

	return serverInfo{
		&http.Server{
			Addr:         address,
			Handler:      middleware.ApplyAllMiddlewares(handler, serviceName, log, registry),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			ErrorLog:     stdlog.New(log, "", 0),
		},
		log,
	}
}
