package db

import (
	"fmt"
	"time"

	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/observability/logger"
	"github.com/glebarez/sqlite"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Module provides the shared *gorm.DB and the ScopedOpener used to
// derive tenant-prefixed handles over the same connection pool.
var Module = fx.Module("db",
	fx.Provide(New),
	fx.Provide(NewScopedOpener),
)

// New opens the primary database handle configured by the environment.
func New(cfg config.Config) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialect, &gorm.Config{
		Logger: logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	return gdb, nil
}

// ScopedOpener derives *gorm.DB handles whose table names carry a fixed
// prefix. On postgres the prefix is a schema qualifier ("tenant_acme."),
// elsewhere it is a plain table-name prefix. All handles share the base
// connection pool.
type ScopedOpener struct {
	cfg  config.Config
	base *gorm.DB
}

func NewScopedOpener(cfg config.Config, base *gorm.DB) *ScopedOpener {
	return &ScopedOpener{cfg: cfg, base: base}
}

// Open returns a handle scoped to prefix.
func (o *ScopedOpener) Open(prefix string) (*gorm.DB, error) {
	sqlDB, err := o.base.DB()
	if err != nil {
		return nil, err
	}

	var dialect gorm.Dialector
	switch o.cfg.DBType {
	case "postgres":
		dialect = postgres.New(postgres.Config{Conn: sqlDB})
	case "mysql":
		dialect = mysql.New(mysql.Config{Conn: sqlDB})
	default:
		dialect = sqlite.Dialector{Conn: sqlDB}
	}

	return gorm.Open(dialect, &gorm.Config{
		Logger: logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: prefix,
		},
	})
}

// Base returns the unscoped handle.
func (o *ScopedOpener) Base() *gorm.DB {
	return o.base
}
