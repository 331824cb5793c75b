package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

type Token struct {
	Codec         string        `mapstructure:"codec"`
	Store         string        `mapstructure:"store"`
	Secret        string        `mapstructure:"secret"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep-interval"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Gateway struct {
	UserAgent        string   `mapstructure:"user-agent"`
	BlockedMarkers   []string `mapstructure:"blocked-markers"`
	ManifestMaxBytes int64    `mapstructure:"manifest-max-bytes"`
}

type Server struct {
	Cert   string
	Key    string
	Bind   string
	Static string
	Proxy  bool
	PProf  bool

	// PublicURL is prepended to minted proxy paths; when empty, clients
	// get relative URLs and any fronting host works.
	PublicURL string

	AllowedOrigins []string

	CatalogPath string

	Token   Token
	Redis   Redis
	Gateway Gateway
}

func (Server) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("bind", "127.0.0.1:8080", "address/port/socket to serve the gateway")
	if err := viper.BindPFlag("bind", cmd.PersistentFlags().Lookup("bind")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cert", "", "path to the SSL cert used to secure the gateway")
	if err := viper.BindPFlag("cert", cmd.PersistentFlags().Lookup("cert")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("key", "", "path to the SSL key used to secure the gateway")
	if err := viper.BindPFlag("key", cmd.PersistentFlags().Lookup("key")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("static", "", "path to client files to serve")
	if err := viper.BindPFlag("static", cmd.PersistentFlags().Lookup("static")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("proxy", false, "allow reverse proxies")
	if err := viper.BindPFlag("proxy", cmd.PersistentFlags().Lookup("proxy")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("pprof", false, "enable pprof endpoint available at /debug/pprof")
	if err := viper.BindPFlag("pprof", cmd.PersistentFlags().Lookup("pprof")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("public-url", "", "public base URL used in minted proxy links")
	if err := viper.BindPFlag("public-url", cmd.PersistentFlags().Lookup("public-url")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog", "", "path to the catalog JSON dump")
	if err := viper.BindPFlag("catalog", cmd.PersistentFlags().Lookup("catalog")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("token.codec", "opaque", "token codec: opaque or sealed")
	if err := viper.BindPFlag("token.codec", cmd.PersistentFlags().Lookup("token.codec")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("token.store", "memory", "token store backend: memory or redis")
	if err := viper.BindPFlag("token.store", cmd.PersistentFlags().Lookup("token.store")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("token.ttl", 3*time.Hour, "how long minted tokens stay valid")
	if err := viper.BindPFlag("token.ttl", cmd.PersistentFlags().Lookup("token.ttl")); err != nil {
		return err
	}

	return nil
}

func (s *Server) Set() {
	s.Cert = viper.GetString("cert")
	s.Key = viper.GetString("key")
	s.Bind = viper.GetString("bind")
	s.Static = viper.GetString("static")
	s.Proxy = viper.GetBool("proxy")
	s.PProf = viper.GetBool("pprof")

	s.PublicURL = viper.GetString("public-url")
	s.AllowedOrigins = viper.GetStringSlice("cors.origins")
	s.CatalogPath = viper.GetString("catalog")

	s.Token.Codec = viper.GetString("token.codec")
	s.Token.Store = viper.GetString("token.store")
	s.Token.Secret = viper.GetString("token.secret")
	s.Token.TTL = viper.GetDuration("token.ttl")
	s.Token.SweepInterval = viper.GetDuration("token.sweep-interval")

	s.Redis.Addr = viper.GetString("redis.addr")
	s.Redis.Password = viper.GetString("redis.password")
	s.Redis.DB = viper.GetInt("redis.db")

	s.Gateway.UserAgent = viper.GetString("gateway.user-agent")
	s.Gateway.BlockedMarkers = viper.GetStringSlice("gateway.blocked-markers")
	s.Gateway.ManifestMaxBytes = viper.GetInt64("gateway.manifest-max-bytes")

	// defaults

	if s.Token.TTL <= 0 {
		s.Token.TTL = 3 * time.Hour
	}

	if s.Token.SweepInterval <= 0 {
		s.Token.SweepInterval = 10 * time.Minute
	}
}
