package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glassdome/cachestream/cache"
	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/server"
	"github.com/glassdome/cachestream/store"
	"github.com/glassdome/cachestream/store/db"
)

const greetingBanner = `cachestream - tenant-scoped cache and invalidation propagation`

var rootCmd = &cobra.Command{
	Use:   "cachestream",
	Short: "A tenant-scoped cache service with invalidation propagation",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Secret:  viper.GetString("secret"),
			Version: "0.1.0",
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("failed to validate profile: %w", err)
		}

		setupLogger(instanceProfile)

		cacheStore, err := cache.New(&cache.Config{
			Addr:        instanceProfile.RedisAddr,
			Password:    instanceProfile.RedisPassword,
			DB:          instanceProfile.RedisDB,
			KeyPrefix:   instanceProfile.KeyPrefix,
			DefaultTTL:  instanceProfile.DefaultTTL,
			TagIndexTTL: instanceProfile.TagIndexTTL,
			OpTimeout:   instanceProfile.OpTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to cache engine: %w", err)
		}

		dbDriver, err := db.NewDBDriver(ctx, instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}
		storeInstance := store.New(dbDriver, instanceProfile)

		brokerConfig := eventbus.DefaultConfig()
		brokerConfig.HeartbeatInterval = instanceProfile.HeartbeatInterval
		brokerConfig.ReaperInterval = instanceProfile.ReaperInterval
		brokerConfig.IdleTimeout = instanceProfile.IdleTimeout
		broker := eventbus.NewBroker(brokerConfig)

		s := server.NewServer(instanceProfile, storeInstance, cacheStore, broker)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			slog.Info("received signal, shutting down", "signal", sig.String())
			s.Shutdown(ctx)
			cancel()
		}()

		fmt.Println(greetingBanner)
		fmt.Printf("version %s has been started on port %d\n", instanceProfile.Version, instanceProfile.Port)

		if err := s.Start(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			cancel()
		}

		<-ctx.Done()
		return nil
	},
}

func setupLogger(instanceProfile *profile.Profile) {
	logLevel := slog.LevelInfo
	if instanceProfile.IsDev() {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if instanceProfile.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign session tokens")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("cachestream")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
}
