package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	sqlite "github.com/glebarez/sqlite"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/config"
	"github.com/vertzdev/vertz/pkg/entityspec"
	"github.com/vertzdev/vertz/pkg/errortracking"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/metrics"
	"github.com/vertzdev/vertz/pkg/middleware"
	"github.com/vertzdev/vertz/pkg/schema"
	"github.com/vertzdev/vertz/pkg/storage"
)

func main() {
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("Vertz test server starting")

	if cfg.ErrorTracking.Enabled && cfg.ErrorTracking.Provider == "sentry" {
		provider, err := errortracking.NewSentryProvider(errortracking.SentryConfig{
			DSN:         cfg.ErrorTracking.DSN,
			Environment: cfg.ErrorTracking.Environment,
			Release:     cfg.ErrorTracking.Release,
			Debug:       cfg.ErrorTracking.Debug,
			SampleRate:  cfg.ErrorTracking.SampleRate,
		})
		if err != nil {
			logger.Error("Failed to initialize error tracking: %v", err)
			os.Exit(1)
		}
		logger.InitErrorTracking(provider)
		defer logger.CloseErrorTracking()
	}

	promRegistry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		metrics.SetProvider(metrics.NewPrometheusProvider(promRegistry, cfg.Metrics.Namespace))
	}

	registry := entityspec.NewRegistry()
	cleanup, err := registerEntities(registry, cfg)
	if err != nil {
		logger.Error("Failed to register entities: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	router := mux.NewRouter()
	router.Use(middleware.PanicRecovery)
	router.Use(middleware.RequestLogging)
	router.Use(middleware.RequestSizeLimit(cfg.Middleware.MaxRequestSize))
	if cfg.Middleware.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.Middleware.RateLimitRPS, cfg.Middleware.RateLimitBurst)
		router.Use(limiter.Middleware)
	}

	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	entityspec.RegisterRoutes(router, registry, entityspec.WithPrefix(cfg.API.Prefix))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

// registerEntities declares the demo entities and binds them to the
// configured storage backend
func registerEntities(registry *entityspec.Registry, cfg *config.Config) (func(), error) {
	users := schema.MustTable("users",
		schema.Column{Name: "id", Type: "string", Primary: true},
		schema.Column{Name: "email", Type: "string"},
		schema.Column{Name: "name", Type: "string"},
		schema.Column{Name: "role", Type: "string"},
		schema.Column{Name: "password_hash", Type: "string", Hidden: true},
		schema.Column{Name: "created_at", Type: "string", ReadOnly: true},
	)
	posts := schema.MustTable("posts",
		schema.Column{Name: "id", Type: "string", Primary: true},
		schema.Column{Name: "title", Type: "string"},
		schema.Column{Name: "body", Type: "string"},
		schema.Column{Name: "author_id", Type: "string"},
		schema.Column{Name: "published", Type: "bool"},
	)

	backend, cleanup, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	userDef, err := entityspec.New("users", users,
		entityspec.WithAccess(entityspec.OpList, entityspec.AllowAll()),
		entityspec.WithAccess(entityspec.OpGet, entityspec.AllowAll()),
		entityspec.WithAccess(entityspec.OpCreate, entityspec.AllowAll()),
		entityspec.WithAccess(entityspec.OpUpdate, entityspec.Allow(ownerOrAdmin)),
		entityspec.WithAccess(entityspec.OpDelete, entityspec.Disabled()),
		entityspec.WithAccess(entityspec.Operation("promote"), entityspec.Allow(adminOnly)),
		entityspec.WithBeforeCreate(newUserDefaults),
		entityspec.WithAfterCreate(func(rc *entityspec.RequestContext, row storage.Row) error {
			logger.Info("User %v created", row["id"])
			return nil
		}),
		entityspec.WithAction(entityspec.Action{
			Name:    "promote",
			Input:   entityspec.Fields{"role": {Required: true, Type: "string"}},
			Handler: promoteUser,
		}),
	)
	if err != nil {
		cleanup()
		return nil, err
	}

	postDef, err := entityspec.New("posts", posts,
		entityspec.WithAccess(entityspec.OpList, entityspec.AllowAll()),
		entityspec.WithAccess(entityspec.OpGet, entityspec.AllowAll()),
		entityspec.WithAccess(entityspec.OpCreate, entityspec.Authenticated()),
		entityspec.WithAccess(entityspec.OpUpdate, entityspec.Allow(postAuthor)),
		entityspec.WithAccess(entityspec.OpDelete, entityspec.Allow(postAuthor)),
		entityspec.WithAccess(entityspec.Operation("publish"), entityspec.Allow(postAuthor)),
		entityspec.WithRelation("author", entityspec.ExposeRelation("id", "name")),
		entityspec.WithInject("users", "users"),
		entityspec.WithBeforeCreate(func(rc *entityspec.RequestContext, input storage.Row) (storage.Row, error) {
			if _, ok := input["id"]; !ok {
				input["id"] = uuid.NewString()
			}
			input["author_id"] = rc.UserID()
			input["published"] = false
			return input, nil
		}),
		entityspec.WithAction(entityspec.Action{
			Name:    "publish",
			Handler: publishPost,
			After: func(rc *entityspec.RequestContext, result any) error {
				logger.Info("Post published: %v", result)
				return nil
			},
		}),
	)
	if err != nil {
		cleanup()
		return nil, err
	}

	for _, pair := range []struct {
		def   *entityspec.Definition
		table *schema.Table
	}{{userDef, users}, {postDef, posts}} {
		adapter, err := backend.adapterFor(pair.table)
		if err != nil {
			cleanup()
			return nil, err
		}
		if _, err := registry.Register(pair.def, adapter); err != nil {
			cleanup()
			return nil, err
		}
	}

	return cleanup, nil
}

func ownerOrAdmin(rc *entityspec.RequestContext, row storage.Row) (bool, error) {
	if rc.HasRole("admin") {
		return true, nil
	}
	return rc.Authenticated() && fmt.Sprint(row["id"]) == rc.UserID(), nil
}

func adminOnly(rc *entityspec.RequestContext, row storage.Row) (bool, error) {
	return rc.HasRole("admin"), nil
}

func postAuthor(rc *entityspec.RequestContext, row storage.Row) (bool, error) {
	if rc.HasRole("admin") {
		return true, nil
	}
	return rc.Authenticated() && fmt.Sprint(row["author_id"]) == rc.UserID(), nil
}

// newUserDefaults forces server-managed fields on signup. Only admins
// may choose a role; everyone else becomes a regular user.
func newUserDefaults(rc *entityspec.RequestContext, input storage.Row) (storage.Row, error) {
	if _, ok := input["id"]; !ok {
		input["id"] = uuid.NewString()
	}
	if !rc.HasRole("admin") {
		input["role"] = "user"
	}
	if email, _ := input["email"].(string); email == "" {
		return nil, apierror.Validation("invalid user", []apierror.FieldError{
			{Field: "email", Message: "email is required"},
		})
	}
	return input, nil
}

func promoteUser(rc *entityspec.RequestContext, input storage.Row, row storage.Row) (any, error) {
	role := fmt.Sprint(input["role"])
	return rc.Entity().Update(rc.Context(), fmt.Sprint(row["id"]), storage.Row{"role": role})
}

func publishPost(rc *entityspec.RequestContext, input storage.Row, row storage.Row) (any, error) {
	return rc.Entity().Update(rc.Context(), fmt.Sprint(row["id"]), storage.Row{"published": true})
}

// backend builds storage adapters for one configured driver
type backend struct {
	driver string
	bunDB  *bun.DB
	gormDB *gorm.DB
}

func newBackend(cfg *config.Config) (*backend, func(), error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return &backend{driver: "memory"}, func() {}, nil

	case "sqlite-bun":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return &backend{driver: "sqlite-bun", bunDB: db}, func() { db.Close() }, nil

	case "sqlite-gorm":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: gormlog.Default.LogMode(gormlog.Silent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &backend{driver: "sqlite-gorm", gormDB: db}, func() {
			if sqldb, err := db.DB(); err == nil {
				sqldb.Close()
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (b *backend) adapterFor(table *schema.Table) (storage.Adapter, error) {
	switch b.driver {
	case "memory":
		return storage.NewMemoryAdapter(table), nil
	case "sqlite-bun":
		if _, err := b.bunDB.Exec(createTableDDL(table)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", table.Name(), err)
		}
		return storage.NewBunAdapter(b.bunDB, table), nil
	case "sqlite-gorm":
		if err := b.gormDB.Exec(createTableDDL(table)).Error; err != nil {
			return nil, fmt.Errorf("create table %s: %w", table.Name(), err)
		}
		return storage.NewGormAdapter(b.gormDB, table), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", b.driver)
	}
}

func createTableDDL(table *schema.Table) string {
	cols := make([]string, 0, len(table.Columns()))
	for _, col := range table.Columns() {
		sqlType := "TEXT"
		switch col.Type {
		case "number":
			sqlType = "NUMERIC"
		case "bool":
			sqlType = "BOOLEAN"
		}
		def := fmt.Sprintf("%s %s", col.Name, sqlType)
		if col.Primary {
			def += " PRIMARY KEY"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Name(), strings.Join(cols, ", "))
}
