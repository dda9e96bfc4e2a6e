package cli

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xssnick/tonutils-go/address"

	"github.com/tonbeats/tonbeats/internal/auth"
	"github.com/tonbeats/tonbeats/internal/handler"
	"github.com/tonbeats/tonbeats/internal/server"
	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/telemetry"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

const banner = `
 _____ ___  _  _ ___             _
|_   _/ _ \| \| | _ ) ___  __ _ | |_  ___
  | || (_) |  \ | _ \/ -_)/ _' ||  _|(_-<
  |_| \___/|_|\_|___/\___|\__,_| \__|/__/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TONBeats API server",
		Long:  "Start the HTTP server that exposes wallet authentication and listen tracking.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev || viper.GetString("logging.level") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx := context.Background()

	// 1. Storage
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	logger.Info("storage initialized", "driver", viper.GetString("storage.driver"))

	// 2. On-chain key resolver
	configURL := viper.GetString("ton.config_url")
	if configURL == "" {
		configURL = "https://ton.org/global.config.json"
		if viper.GetBool("ton.testnet") {
			configURL = "https://ton.org/testnet-global.config.json"
		}
	}
	var resolver tonx.KeyResolver
	chainResolver, err := tonx.NewChainKeyResolver(ctx, configURL)
	if err != nil {
		logger.Warn("liteserver connection failed, proofs without state init will be rejected", "error", err)
		resolver = tonx.ResolverFunc(func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
			return nil, tonx.ErrKeyUnresolvable
		})
	} else {
		resolver = chainResolver
		logger.Info("liteserver pool connected", "config", configURL)
	}

	// 3. Verifiers
	appDomain := viper.GetString("auth.app_domain")
	if appDomain == "" {
		appDomain = "tonbeats.io"
	}
	allowedDomains := viper.GetStringSlice("auth.allowed_domains")
	if len(allowedDomains) == 0 {
		allowedDomains = []string{appDomain}
	}

	challenges := auth.NewChallengeStore(auth.DefaultChallengeTTL)
	proofVerifier := auth.NewProofVerifier(challenges, resolver, appDomain,
		viper.GetDuration("auth.proof_skew"), logger)
	signDataVerifier := auth.NewSignDataVerifier(allowedDomains,
		viper.GetDuration("auth.sign_data_max_age"), logger)

	// 4. Credentials and sessions
	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret, err = store.GetSetting(ctx, "auth.jwt_secret")
		if err != nil || jwtSecret == "" {
			logger.Warn("no JWT secret configured - using insecure dev secret, run: tonbeats config set-secret")
			jwtSecret = "tonbeats-dev-secret-change-me"
		}
	}
	creds := service.NewCredentialIssuer(store, jwtSecret).
		WithTTLs(viper.GetDuration("auth.api_key_ttl"), viper.GetDuration("auth.session_ttl"))

	sessions := service.NewSessionStore(viper.GetDuration("auth.session_ttl"),
		service.DefaultSweepInterval, store, logger)
	sessions.Start()
	defer sessions.Stop()

	// 5. Detector and ledger
	rules := service.DefaultDetectorRules()
	if n := viper.GetInt("detector.hourly_limit"); n > 0 {
		rules.HourlyLimit = n
	}
	if n := viper.GetInt("detector.daily_limit"); n > 0 {
		rules.DailyLimit = n
	}
	if n := viper.GetInt("detector.per_nft_limit"); n > 0 {
		rules.PerNFTLimit = n
	}
	detector := service.NewDetector(store, rules, logger)
	ledger := service.NewLedger(store)

	// 6. Telemetry
	tracker := telemetry.New(ctx, store, func() telemetry.Properties {
		props := telemetry.Properties{
			Version:        versionString(),
			GoVersion:      runtime.Version(),
			OS:             runtime.GOOS,
			Arch:           runtime.GOARCH,
			StorageDriver:  viper.GetString("storage.driver"),
			ActiveSessions: sessions.Len(),
		}
		if n, err := store.CountSessionAudit(ctx); err == nil {
			props.SessionsTotal = n
		}
		if keys, err := store.ListAPIKeys(ctx); err == nil {
			props.APIKeys = len(keys)
		}
		if n, err := store.CountListenEvents(ctx); err == nil {
			props.ListensTotal = n
		}
		if flags, err := store.ListOpenSuspiciousActivity(ctx, 1000); err == nil {
			props.OpenFlags = len(flags)
		}
		return props
	})
	if tracker != nil {
		tracker.Start()
		defer tracker.Shutdown()
	}

	// 7. Build and start HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if t := viper.GetDuration("server.shutdown_timeout"); t > 0 {
		srvCfg.ShutdownTimeout = t
	}
	if n := viper.GetInt("server.rate_per_minute"); n > 0 {
		srvCfg.RatePerMinute = n
	}
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 && !dev {
		srvCfg.CORSOrigins = origins
	}

	authHandler := handler.NewAuthHandler(proofVerifier, signDataVerifier, creds, sessions, resolver, appDomain, logger)
	listenHandler := handler.NewListenHandler(detector, ledger, logger)

	srv := server.New(srvCfg, server.Deps{
		Store:    store,
		Sessions: sessions,
		Creds:    creds,
		Auth:     authHandler,
		Listen:   listenHandler,
	}, logger)

	fmt.Printf("→ TONBeats %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", host, port)
	fmt.Printf("→ API:      http://%s:%d/api/v1\n", host, port)
	fmt.Printf("→ Domain:   %s\n", appDomain)
	fmt.Println()

	return srv.ListenAndServe()
}
