package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"blustick/internal/auth"
	"blustick/internal/bootstrap/config"
	"blustick/internal/bootstrap/database"
	"blustick/internal/bootstrap/logging"
	"blustick/internal/httpapi"
	cacheinfra "blustick/internal/infrastructure/cache"
	sqliterepo "blustick/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "blustick/internal/infrastructure/persistence/sqlite/uow"
	"blustick/internal/ports"
	"blustick/internal/usecase/detections"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewDetectionRepository,
			fx.As(new(ports.DetectionRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideVerifier),
	fx.Provide(provideService),
	fx.Provide(provideServer),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideVerifier(cfg config.Config) (*auth.Verifier, error) {
	return auth.NewVerifier(cfg.HTTP.JWTSecret)
}

func provideService(repo ports.DetectionRepository, uow ports.UnitOfWork, cache ports.Cache, cfg config.Config) *detections.Service {
	return detections.NewService(repo, uow, cache, cfg.HTTP.SummaryCacheTTL)
}

func provideServer(cfg config.Config, svc *detections.Service, verifier *auth.Verifier) *httpapi.Server {
	return httpapi.NewServer(cfg.HTTP, svc, verifier)
}
