package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marvellous-media/marvellous-manager/api"
	"github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	authPostgres "github.com/marvellous-media/marvellous-manager/internal/auth/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/leave"
	leavePostgres "github.com/marvellous-media/marvellous-manager/internal/leave/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/notification"
	notificationPostgres "github.com/marvellous-media/marvellous-manager/internal/notification/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
	shiftPostgres "github.com/marvellous-media/marvellous-manager/internal/shift/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/swap"
	swapPostgres "github.com/marvellous-media/marvellous-manager/internal/swap/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/task"
	taskPostgres "github.com/marvellous-media/marvellous-manager/internal/task/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/telemetry"
	"github.com/marvellous-media/marvellous-manager/internal/transport/rest"
	"github.com/marvellous-media/marvellous-manager/internal/user"
	userPostgres "github.com/marvellous-media/marvellous-manager/internal/user/postgres"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving the REST API and the realtime change feed`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *Databases
	Router     *chi.Mux
	Logger     *slog.Logger
	EventBus   *events.EventBus
	Dispatcher *notification.Dispatcher
	Hub        *realtime.Hub
	Broker     realtime.Publisher
	closers    []func(context.Context) error
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(deps.Router, deps.Config.Observability.Tracing.ServiceName),
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
			deps.shutdown(context.Background())
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		deps.Logger.Error("server shutdown error", "error", err)
	}
	deps.shutdown(ctx)

	deps.Logger.Info("server stopped")
}

// shutdown releases resources in reverse order of acquisition.
func (d *Dependencies) shutdown(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			d.Logger.Error("shutdown step failed", "error", err)
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Env, config.Observability.Logging.Level)
	log := logger.LoggerWrapper()

	if _, err := api.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		Logger: log,
		Router: chi.NewRouter(),
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), config.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	deps.closers = append(deps.closers, shutdownTracing)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db
	deps.closers = append(deps.closers, func(context.Context) error { return db.Close() })

	if err := deps.initRealtime(); err != nil {
		deps.shutdown(context.Background())
		return nil, err
	}

	deps.initNotifications()
	deps.registerRoutes()

	return deps, nil
}

func (d *Dependencies) initRealtime() error {
	cfg := d.Config.Realtime
	d.Hub = realtime.NewHub(logger.Component("realtime"))

	if cfg.Broker != "redis" {
		d.Broker = realtime.NewMemoryBroker(d.Hub)
		return nil
	}

	broker, err := realtime.NewRedisBroker(realtime.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.Channel,
	}, d.Hub, logger.Component("realtime.redis"))
	if err != nil {
		return fmt.Errorf("failed to initialize redis broker: %w", err)
	}

	go func() {
		if err := broker.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			d.Logger.Error("change feed relay stopped", "error", err)
		}
	}()

	d.Broker = broker
	d.closers = append(d.closers, func(context.Context) error { return broker.Close() })
	return nil
}

func (d *Dependencies) initNotifications() {
	cfg := d.Config.Notification
	repo := notificationPostgres.NewNotificationRepository(d.DB.Gorm)

	client := notification.NewEdgeFunctionClient(cfg.EdgeFunctionURL, cfg.APIKey, cfg.Timeout)
	d.Dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		MaxWorkers:   cfg.MaxWorkers,
		JobQueueSize: cfg.JobQueueSize,
		SendTimeout:  cfg.Timeout,
	}, client, repo, logger.Component("notification.dispatcher"))

	d.EventBus = events.NewEventBus(logger.Component("events"))
	notification.NewEventHandler(d.Dispatcher, logger.Component("notification")).RegisterEventHandlers(d.EventBus)

	// Handlers run detached from requests; wait for them before draining the queue.
	d.closers = append(d.closers, d.Dispatcher.Shutdown, d.EventBus.Wait)
}

func (d *Dependencies) registerRoutes() {
	cfg := d.Config
	gdb := d.DB.Gorm

	userRepo := userPostgres.NewUserRepository(gdb)
	shiftRepo := shiftPostgres.NewShiftRepository(gdb)
	leaveRepo := leavePostgres.NewLeaveRepository(gdb)
	swapRepo := swapPostgres.NewSwapRepository(gdb)
	taskRepo := taskPostgres.NewTaskRepository(gdb)
	notificationRepo := notificationPostgres.NewNotificationRepository(gdb)

	permissions := auth.NewPermissionChecker()
	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(gdb), tokens, permissions, logger.Component("auth"))

	rules := balanceRules(cfg.Schedule)
	loc := cfg.Schedule.Location()

	userService := user.NewService(userRepo, rules, cfg.Security.BCryptCost, logger.Component("user"))
	shiftService := shift.NewService(shiftRepo, shiftRepo, d.Broker, d.EventBus, shift.Options{
		Location:        loc,
		RecurrenceWeeks: cfg.Schedule.RecurrenceWeeks,
	}, logger.Component("shift"))
	leaveService := leave.NewService(
		leaveRepo,
		leaveRepo,
		shiftRepo,
		userRepo,
		leavePostgres.NewBalanceReportStore(d.DB.SQLX),
		d.Broker,
		d.EventBus,
		leave.Options{
			Location:         loc,
			Rules:            rules,
			DayOffKey:        cfg.Schedule.DayOffTemplate,
			PublicHolidayKey: cfg.Schedule.HolidayTemplate,
		},
		logger.Component("leave"),
	)
	swapService := swap.NewService(swapRepo, swapRepo, shiftRepo, d.Broker, d.EventBus, logger.Component("swap"))
	taskService := task.NewService(taskRepo, d.Broker, d.EventBus, logger.Component("task"))
	notificationService := notification.NewService(notificationRepo, notificationRepo, cfg.Notification.SubscriptionCooldown, logger.Component("notification"))

	handlers := rest.Handlers{
		Health:       rest.NewHealthHandler(d.DB.SQLX, d.Hub),
		Auth:         auth.NewHandler(authService),
		User:         user.NewHandler(userService),
		Shift:        shift.NewHandler(shiftService),
		Leave:        leave.NewHandler(leaveService),
		Swap:         swap.NewHandler(swapService),
		Task:         task.NewHandler(taskService),
		Notification: notification.NewHandler(notificationService),
		Realtime: realtime.NewHandler(rest.RealtimePrefix, d.Hub, authService,
			cfg.Realtime.ClientBuffer, logger.Component("realtime.socket")),
	}

	rest.RegisterAllRoutes(d.Router, handlers, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RBAC:           auth.NewRBACAuthorization(permissions, logger.Component("rbac")),
	}, d.Logger)
}

func balanceRules(cfg internal.ScheduleConfig) user.BalanceRules {
	rules := user.DefaultBalanceRules()
	if cfg.HoursPerDay > 0 {
		rules.HoursPerDay = cfg.HoursPerDay
	}
	if cfg.DefaultBalance > 0 {
		rules.DefaultDays = cfg.DefaultBalance
	}
	return rules
}
