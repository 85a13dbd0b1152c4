package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/server"
	"github.com/accountd/accountd/internal/store"
)

func main() {
	panicLogger, err := logging.CreateLogger(zerolog.WarnLevel, "json", os.Stderr)
	if err != nil {
		panic("BUG: invalid default logger")
	}

	configPath, configPathSet := os.LookupEnv("ACCOUNTD_CONFIG_PATH")
	if !configPathSet {
		configPath = "./accountd.yaml"
	}

	conf, err := config.Parse(configPath, os.LookupEnv)
	if err != nil {
		if configPathSet {
			panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
		}
		conf = config.Default(os.LookupEnv)
	}

	if err := conf.Validate(); err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}

	logLevel, err := zerolog.ParseLevel(conf.Log.Level)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}
	logger, err := logging.CreateLogger(logLevel, conf.Log.Format, os.Stderr)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to initialize logger")
	}

	if !configPathSet {
		logger.Info().
			Msg("accountd.yaml not found and ACCOUNTD_CONFIG_PATH not set: Using default configuration")
	}

	userStore, err := store.Open(conf.Store.Path, conf.Store.ReadCacheSize.Bytes, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to start server: can't open the user store")
	}
	defer func() {
		logger.Info().Msg("Closing the user store")
		if err := userStore.Close(); err != nil {
			logger.Error().Err(err).Msg("Couldn't close the user store properly")
		}
	}()

	authenticator := auth.New(conf.Auth.Secret, conf.Auth.TokenTTL)

	srv := server.New(conf, userStore, authenticator, &logger, prometheus.NewRegistry())
	if err := srv.ListenAndServe(); err != nil {
		logger.Panic().Err(err).Msg("An error occurred while shutting down the server")
	}

	logger.Info().Msg("Server shut down")
}
