// Package mysql implements cache.Provider on top of a MySQL table of secret
// versions, accessed through GORM.
//
// Each row is one version of a secret. version_stages holds the comma
// separated stage labels of the version, e.g. "AWSCURRENT,AWSPENDING".
package mysql

import (
	"context"
	"strings"
	"time"

	"github.com/dailyyoga/secretcache/cache"
	"github.com/dailyyoga/secretcache/logger"
	"go.uber.org/zap"
	gmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// SecretVersion is one row of the secret versions table
type SecretVersion struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	SecretID      string    `gorm:"column:secret_id;size:255;not null;index:idx_secret_versions_lookup,priority:1"`
	VersionID     string    `gorm:"column:version_id;size:64;not null"`
	VersionStages string    `gorm:"column:version_stages;size:255;not null;default:''"`
	SecretString  *string   `gorm:"column:secret_string;type:mediumtext"`
	SecretBinary  []byte    `gorm:"column:secret_binary;type:mediumblob"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_secret_versions_lookup,priority:2"`
}

// Stages returns the stage labels of the version
func (v *SecretVersion) Stages() []string {
	var stages []string
	for _, s := range strings.Split(v.VersionStages, ",") {
		if s = strings.TrimSpace(s); s != "" {
			stages = append(stages, s)
		}
	}
	return stages
}

// toSecretValue converts a row into a cache value. A string payload takes
// precedence over a binary one.
func (v *SecretVersion) toSecretValue() *cache.SecretValue {
	out := &cache.SecretValue{
		Name:          v.SecretID,
		VersionID:     v.VersionID,
		VersionStages: v.Stages(),
		CreatedDate:   v.CreatedAt,
	}
	if v.SecretString != nil {
		out.SecretString = v.SecretString
	} else {
		out.SecretBinary = v.SecretBinary
		if out.SecretBinary == nil {
			out.SecretBinary = []byte{}
		}
	}
	return out
}

// Provider reads secret versions from MySQL
type Provider struct {
	logger logger.Logger
	db     *gorm.DB
	table  string
}

var _ cache.Provider = (*Provider)(nil)

// New opens a MySQL connection pool described by cfg and returns a Provider
// reading from cfg.Table
func New(log logger.Logger, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	db, err := gorm.Open(gmysql.Open(cfg.DSN()), &gorm.Config{
		Logger:                                   newGormLogger(log, cfg.LogLevel, cfg.SlowThreshold),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb, err := db.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqldb.Ping(); err != nil {
		return nil, ErrConnection(err)
	}

	log.Info("secret database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("table", cfg.Table),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return &Provider{logger: log, db: db, table: cfg.Table}, nil
}

// NewWithDB returns a Provider using an existing GORM handle. An empty table
// uses the default table name.
func NewWithDB(log logger.Logger, db *gorm.DB, table string) (*Provider, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if table == "" {
		table = DefaultConfig().Table
	}
	if !tableNamePattern.MatchString(table) {
		return nil, ErrInvalidConfig("table " + table + " is not a valid identifier")
	}
	return &Provider{logger: logger.OrNop(log), db: db, table: table}, nil
}

// FetchSecretValue returns the newest version of secretID labelled
// versionStage. No matching row is reported as cache.ErrNotFound.
func (p *Provider) FetchSecretValue(ctx context.Context, secretID, versionStage string) (*cache.SecretValue, error) {
	var rows []SecretVersion
	if err := p.latest(p.db.WithContext(ctx), secretID, versionStage).Find(&rows).Error; err != nil {
		return nil, ErrQuery(secretID, err)
	}
	if len(rows) == 0 {
		return nil, cache.ErrSecretNotFound(secretID, versionStage)
	}
	return rows[0].toSecretValue(), nil
}

// latest builds the lookup of the newest version carrying stage
func (p *Provider) latest(db *gorm.DB, secretID, versionStage string) *gorm.DB {
	return db.Table(p.table).
		Where("secret_id = ? AND FIND_IN_SET(?, version_stages) > 0", secretID, versionStage).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1)
}

// Migrate creates or updates the secret versions table
func (p *Provider) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).Table(p.table).AutoMigrate(&SecretVersion{}); err != nil {
		return ErrMigrate(err)
	}
	p.logger.Info("secret versions table migrated", zap.String("table", p.table))
	return nil
}

// Ping checks the database connection
func (p *Provider) Ping(ctx context.Context) error {
	sqldb, err := p.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.PingContext(ctx)
}

// Close closes the underlying connection pool
func (p *Provider) Close() error {
	sqldb, err := p.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.Close()
}
