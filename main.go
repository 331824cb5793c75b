package streamgate

import (
	"os"
	"os/signal"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"streamgate/internal/config"
	"streamgate/internal/metrics"
	"streamgate/internal/server"
	apiModule "streamgate/modules/api"
	proxyModule "streamgate/modules/proxy"
	"streamgate/pkg/catalog"
	proxyPkg "streamgate/pkg/proxy"
	"streamgate/pkg/token"
)

var Service *Main

func init() {
	Service = &Main{
		ServerConfig: &config.Server{},
	}
}

type Main struct {
	ServerConfig *config.Server

	logger  zerolog.Logger
	metrics *metrics.Metrics

	memStore   *token.MemoryStore
	redisStore *token.RedisStore
	minter     *token.Minter

	api    *apiModule.ModuleCtx
	proxy  *proxyModule.ModuleCtx
	server *server.ServerManagerCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Start() {
	cfg := main.ServerConfig

	main.metrics = metrics.New()

	codec := main.newCodec(cfg)
	main.minter = token.NewMinter(codec, cfg.PublicURL, cfg.Token.TTL)

	var cat catalog.Store
	if cfg.CatalogPath != "" {
		fileStore, err := catalog.NewFileStore(cfg.CatalogPath)
		if err != nil {
			main.logger.Panic().Err(err).Msg("unable to load catalog")
		}
		cat = fileStore
	} else {
		main.logger.Warn().Msg("no catalog configured, /lecture is disabled")
	}

	proxyManager := proxyPkg.New(codec, main.metrics, &proxyPkg.Config{
		PathPrefix:       "/video/",
		UserAgent:        cfg.Gateway.UserAgent,
		BlockedMarkers:   cfg.Gateway.BlockedMarkers,
		ManifestMaxBytes: cfg.Gateway.ManifestMaxBytes,
	})

	main.api = apiModule.New(main.minter, cat, main.metrics)
	main.proxy = proxyModule.New("/video/", proxyManager)

	main.server = server.New(cfg)
	main.server.Mount(func(r *chi.Mux) {
		main.api.Mount(r)
		r.Handle("/metrics", main.metrics.Handler())
		r.Handle("/video/*", main.proxy)
	})
	main.server.Start()
}

func (main *Main) newCodec(cfg *config.Server) token.Codec {
	if cfg.Token.Codec == "sealed" {
		if cfg.Token.Secret == "" {
			main.logger.Panic().Msg("token.secret is required for the sealed codec")
		}

		codec, err := token.NewSealedCodec(cfg.Token.Secret)
		if err != nil {
			main.logger.Panic().Err(err).Msg("unable to initialize sealed codec")
		}

		main.logger.Info().Msg("using sealed tokens, no server-side token store")
		return codec
	}

	var store token.Store
	if cfg.Token.Store == "redis" {
		redisStore, err := token.NewRedisStore(token.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			main.logger.Panic().Err(err).Msg("unable to connect to redis token store")
		}

		main.redisStore = redisStore
		store = redisStore
	} else {
		main.memStore = token.NewMemoryStore(cfg.Token.SweepInterval)
		main.memStore.Start()
		store = main.memStore
	}

	return token.NewOpaqueCodec(store)
}

func (main *Main) Shutdown() {
	if err := main.server.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	} else {
		main.logger.Debug().Msg("server shutdown")
	}

	if main.proxy != nil {
		main.proxy.Shutdown()
		main.logger.Debug().Msg("proxy shutdown")
	}

	if main.memStore != nil {
		main.memStore.Stop()
	}

	if main.redisStore != nil {
		if err := main.redisStore.Close(); err != nil {
			main.logger.Err(err).Msg("redis close with an error")
		}
	}
}

func (main *Main) ServeCommand(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.Start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
