package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/banshee-data/scavenger/internal/config"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/storage/redis"
	"github.com/banshee-data/scavenger/internal/scavenger/storage/sqlite"
)

// registry is one run of a backend.
type registry interface {
	l6identity.Registry
	l6identity.Reporter
	RunID() string
}

// memoryRun gives the in-process registry a run id.
type memoryRun struct {
	*l6identity.MemoryRegistry
	id string
}

func (m memoryRun) RunID() string { return m.id }

// backendHandle owns the connection behind a registry.
type backendHandle struct {
	reg   registry
	close func() error
	// admin attaches backend-specific routes; nil when the backend has none.
	admin func(mux *http.ServeMux) error
}

func openBackend(ctx context.Context, name string, opts options, cfg *config.TuningConfig) (*backendHandle, error) {
	switch name {
	case config.BackendMemory:
		if opts.Resume != "" {
			return nil, fmt.Errorf("the memory registry cannot resume run %s", opts.Resume)
		}
		return &backendHandle{
			reg:   memoryRun{MemoryRegistry: l6identity.NewMemoryRegistry(), id: uuid.New().String()},
			close: func() error { return nil },
		}, nil

	case config.BackendRedis:
		addr := cfg.GetRedisAddr()
		if opts.RedisAddr != "" {
			addr = opts.RedisAddr
		}
		client, err := redis.NewClient(ctx, addr)
		if err != nil {
			return nil, err
		}
		var store *redis.Store
		if opts.Resume != "" {
			store, err = redis.ResumeRun(ctx, client, opts.Resume)
		} else {
			store, err = redis.StartRun(ctx, client, opts.Label)
		}
		if err != nil {
			client.Close()
			return nil, err
		}
		return &backendHandle{reg: store, close: client.Close}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(opts.DBPath)
		if err != nil {
			return nil, err
		}
		var store *sqlite.Store
		if opts.Resume != "" {
			store, err = db.ResumeRun(ctx, opts.Resume)
		} else {
			store, err = db.StartRun(ctx, opts.Label)
		}
		if err != nil {
			db.Close()
			return nil, err
		}
		return &backendHandle{
			reg:   store,
			close: db.Close,
			admin: func(mux *http.ServeMux) error { return db.AttachAdminRoutes(mux, opts.BackupDir) },
		}, nil

	default:
		return nil, fmt.Errorf("unknown registry backend %q", name)
	}
}
