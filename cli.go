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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valtrilabs/cafe-backend/config"
	"github.com/valtrilabs/cafe-backend/database"
	"github.com/valtrilabs/cafe-backend/kds"
	"github.com/valtrilabs/cafe-backend/messaging"
	"github.com/valtrilabs/cafe-backend/router"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "cafe",
		Short:         "Cafe table sessions and ordering backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db-driver", "", "database driver (sqlite, mysql, postgres)")
	root.PersistentFlags().String("db-dsn", "", "database DSN")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	// unset flags fall through to the environment and defaults
	_ = v.BindPFlag("db_driver", root.PersistentFlags().Lookup("db-driver"))
	_ = v.BindPFlag("db_dsn", root.PersistentFlags().Lookup("db-dsn"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	serve := serveCmd(v)
	root.AddCommand(serve, migrateCmd(v), seedCmd(v), sweepCmd(v), qrCmd(v))
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

// bootstrap loads the configuration, configures logging and opens the
// database.
func bootstrap(v *viper.Viper) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(v)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, db)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().Int("tables", 0, "number of tables in the cafe")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("table_count", cmd.Flags().Lookup("tables"))
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve")
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.EnsureAdmin(ctx, db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	policy, err := services.NewStatusPolicy(cfg.Policy.Transitions, cfg.Policy.Terminal, cfg.Policy.PaymentRequired)
	if err != nil {
		return fmt.Errorf("invalid status policy: %w", err)
	}

	allocator, closeAllocator, err := newAllocator(cfg, db)
	if err != nil {
		return err
	}
	defer closeAllocator()

	hub := kds.NewHub()
	defer hub.Close()
	notifier := services.MultiNotifier{hub}
	if cfg.AMQPURL != "" {
		publisher, err := messaging.Dial(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = append(notifier, publisher)
		utils.InfoLogger.Printf("Publishing events to exchange %s", messaging.Exchange)
	}

	tables := services.NewTableRegistry(cfg.TableCount)
	sessions := services.NewSessionService(db, tables, cfg.SessionTTL,
		services.WithRateLimiter(services.NewTableRateLimiter(cfg.SessionRateLimit, cfg.SessionRateWindow)),
		services.WithSessionNotifier(notifier),
		services.WithSessionPolicy(policy),
	)
	menu := services.NewGormMenuLookup(db)
	orders := services.NewOrderService(db, sessions, menu, allocator,
		services.WithStatusPolicy(policy),
		services.WithOrderNotifier(notifier),
	)

	janitor := services.NewSessionJanitor(db, cfg.RetentionAge, cfg.RetentionInterval)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer func() {
		if err := janitor.Stop(); err != nil {
			utils.ErrorLogger.Printf("Failed to stop session janitor: %v", err)
		}
	}()

	r := router.SetupRouter(router.Deps{
		DB:            db,
		Tables:        tables,
		Sessions:      sessions,
		Orders:        orders,
		Menu:          menu,
		StaffCalls:    services.NewStaffCallService(db, tables, notifier),
		Floor:         services.NewFloorService(db, tables),
		Hub:           hub,
		Signer:        utils.NewJWTSigner(cfg.JWTSecret, cfg.JWTTTL),
		PublicBaseURL: cfg.PublicBaseURL,
		CORSOrigins:   cfg.CORSOrigins,
		IPRateLimit:   cfg.IPRateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"tables":   cfg.TableCount,
			"ttl":      cfg.SessionTTL.String(),
			"numbers":  cfg.OrderNumberStrategy,
			"database": cfg.DBDriver,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	utils.InfoLogger.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newAllocator picks the order number allocator for ORDER_NUMBER_STRATEGY.
// The returned func releases any connection it opened.
func newAllocator(cfg *config.Config, db *gorm.DB) (services.OrderNumberAllocator, func(), error) {
	switch cfg.OrderNumberStrategy {
	case config.StrategyMax:
		utils.ErrorLogger.Warn("max+1 order numbers rely on the unique index and retries under concurrency")
		return services.NewMaxPlusOneAllocator(db, cfg.OrderNumberBase), func() {}, nil
	case config.StrategyRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		alloc := services.NewRedisAllocator(client, db, services.DefaultOrderNumberKey, cfg.OrderNumberBase)
		return alloc, func() { client.Close() }, nil
	default:
		return services.NewCounterAllocator(db, cfg.OrderNumberBase), func() {}, nil
	}
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(v)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			return database.EnsureAdmin(cmd.Context(), db, cfg.AdminEmail, cfg.AdminPassword)
		},
	}
}

func seedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample menu into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(v)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			n, err := database.SeedMenu(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d menu items\n", n)
			return database.EnsureAdmin(cmd.Context(), db, cfg.AdminEmail, cfg.AdminPassword)
		},
	}
}

func sweepCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete inactive sessions older than RETENTION_AGE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap(v)
			if err != nil {
				return err
			}
			n, err := services.NewSessionJanitor(db, cfg.RetentionAge, cfg.RetentionInterval).SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d sessions\n", n)
			return nil
		},
	}
}

func qrCmd(v *viper.Viper) *cobra.Command {
	var (
		table int
		out   string
		size  int
	)
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Write the scan QR code for a table as a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if !services.NewTableRegistry(cfg.TableCount).IsValid(table) {
				return fmt.Errorf("table %d is outside 1..%d", table, cfg.TableCount)
			}
			png, err := utils.GenerateQRCode(utils.TableScanURL(cfg.PublicBaseURL, table), size)
			if err != nil {
				return fmt.Errorf("failed to encode QR code: %w", err)
			}
			if out == "" {
				out = fmt.Sprintf("table-%d.png", table)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&table, "table", "t", 0, "table number")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default table-N.png)")
	cmd.Flags().IntVar(&size, "size", 256, "image size in pixels")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
