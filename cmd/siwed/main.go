// siwed is the standalone "Sign in with Essentials" daemon: it terminates
// the provider authorization-code flows and hands sessions back to the
// host site.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Puvox/sign-in-with-essentials/internal/cache"
	memcache "github.com/Puvox/sign-in-with-essentials/internal/cache/memory"
	rediscache "github.com/Puvox/sign-in-with-essentials/internal/cache/redis"
	"github.com/Puvox/sign-in-with-essentials/internal/config"
	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/flow"
	"github.com/Puvox/sign-in-with-essentials/internal/httpapi"
	"github.com/Puvox/sign-in-with-essentials/internal/notify"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/logger"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/metrics"
	"github.com/Puvox/sign-in-with-essentials/internal/policy"
	"github.com/Puvox/sign-in-with-essentials/internal/resolver"
	memstore "github.com/Puvox/sign-in-with-essentials/internal/store/memory"
	pgstore "github.com/Puvox/sign-in-with-essentials/internal/store/pg"
)

var version = "dev"

func main() {
	// Best effort: a missing .env is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "siwed",
		Short:         "Sign in with Essentials daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("SIWE_CONFIG"), "path to config.yaml")

	root.AddCommand(serve)
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println("siwed", version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "siwed:", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Format:      cfg.Log.Format,
		Level:       cfg.Log.Level,
		ServiceName: "siwed",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L().With(logger.Component("main"))

	dir, closeDir, err := buildDirectory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closeDir()

	store, err := buildCache(cfg)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	options := policy.NewMapStore(cfg.Options)

	res := resolver.New(resolver.Deps{
		Directory:  dir,
		Permission: policy.PermitAll{},
		Password:   policy.RandomPassword{},
	})

	orchestrator := flow.New(flow.Deps{
		Options:   options,
		Directory: dir,
		Resolver:  res,
		Clients:   flow.DefaultClientFactory{},
		Cache:     store,
		Redirects: policy.PassThroughRedirect{},
		Notifier:  buildNotifier(cfg),
	})

	controller := httpapi.NewController(orchestrator, dir, store)
	handler := httpapi.NewRouter(controller, metrics.Register(nil))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("storage", cfg.Storage.Driver),
			logger.String("cache", cfg.Cache.Kind))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildDirectory(ctx context.Context, cfg *config.Config) (directory.UserDirectory, func(), error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return memstore.New(), func() {}, nil
	case "postgres":
		st, err := pgstore.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildCache(cfg *config.Config) (cache.Store, error) {
	ttl, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
	switch cfg.Cache.Kind {
	case "", "memory":
		return memcache.New(ttl), nil
	case "redis":
		return rediscache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache kind %q", cfg.Cache.Kind)
	}
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.SMTP.Host == "" {
		return nil
	}
	return notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		SiteName: cfg.Options["siwe_site_name"],
	})
}
