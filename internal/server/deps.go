package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/book-club/internal/config"
	"github.com/sakif/book-club/internal/metrics"
	"github.com/sakif/book-club/internal/repository"
	"github.com/sakif/book-club/internal/repository/memory"
	"github.com/sakif/book-club/internal/repository/postgres"
	"github.com/sakif/book-club/internal/repository/redis"
	"github.com/sakif/book-club/internal/repository/s3"
	"github.com/sakif/book-club/internal/repository/sqlite"
)

// Stores is the opened storage backends. The server and the admin CLI both
// build them through OpenStores, so they always agree on where data lives.
type Stores struct {
	Collections repository.CollectionStore
	Images      repository.ImageStore
	closers     []io.Closer
}

// Close releases every backend, in reverse opening order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// OpenStores connects the collection and image backends named in cfg.
//
// BACKEND SHARING:
// The sqlite and memory backends implement both ports. When both drivers
// name the same one, a single instance serves both so there is one file
// (or one map) to reason about.
//
// reg may be nil; otherwise collection loads and saves are counted.
func OpenStores(ctx context.Context, cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}
	fail := func(err error) (*Stores, error) {
		s.Close()
		return nil, err
	}

	var (
		sqliteDB *sqlite.DB
		mem      *memory.Store
	)
	openSQLite := func() (*sqlite.DB, error) {
		if sqliteDB != nil {
			return sqliteDB, nil
		}
		path := cfg.Storage.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		sqliteDB = db
		s.closers = append(s.closers, db)
		return db, nil
	}
	openMemory := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
			s.closers = append(s.closers, mem)
		}
		return mem
	}

	var collections repository.CollectionStore
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := openSQLite()
		if err != nil {
			return fail(err)
		}
		collections = db
	case config.DriverMemory:
		logger.Warn("memory storage selected, data is lost on restart")
		collections = openMemory()
	case config.DriverRedis:
		rs, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, rs)
		collections = rs
	case config.DriverPostgres:
		pg, err := postgres.Connect(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, pg)
		collections = pg
	default:
		return fail(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
	}
	s.Collections = metrics.InstrumentStore(collections, reg)

	switch cfg.Images.Driver {
	case config.DriverSQLite:
		db, err := openSQLite()
		if err != nil {
			return fail(err)
		}
		s.Images = db
	case config.DriverMemory:
		s.Images = openMemory()
	case config.DriverS3:
		bucket, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.Images.S3.Endpoint,
			Region:    cfg.Images.S3.Region,
			Bucket:    cfg.Images.S3.Bucket,
			AccessKey: cfg.Images.S3.AccessKey,
			SecretKey: cfg.Images.S3.SecretKey,
			UseSSL:    cfg.Images.S3.UseSSL,
		})
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, bucket)
		s.Images = bucket
	default:
		return fail(fmt.Errorf("unknown images driver %q", cfg.Images.Driver))
	}

	logger.Info("storage ready",
		slog.String("collections", cfg.Storage.Driver),
		slog.String("images", cfg.Images.Driver),
	)
	return s, nil
}
