// Package di wires the application together. Manual constructor
// injection, initialized in dependency order.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stewardhq/steward/internal/app"
	appconfig "github.com/stewardhq/steward/internal/app/config"
	"github.com/stewardhq/steward/internal/application/port"
	"github.com/stewardhq/steward/internal/application/usecase/advance"
	"github.com/stewardhq/steward/internal/application/usecase/mirror"
	"github.com/stewardhq/steward/internal/application/usecase/step"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/infrastructure/github"
	sqliterepo "github.com/stewardhq/steward/internal/infrastructure/persistence/sqlite"
)

// Container holds all wired dependencies
type Container struct {
	db *sql.DB

	entityRepo       repository.EntityRepository
	runRepo          repository.RunRepository
	lockRepo         repository.LockRepository
	idempotencyRepo  repository.IdempotencyRepository
	snapshotRepo     repository.SnapshotRepository
	closureRepo      repository.ClosureRepository
	eventRepo        repository.EventRepository
	stopDecisionRepo repository.StopDecisionRepository

	scmFactory port.SourceControlFactory
	mirror     *mirror.Service

	coordinator *advance.Coordinator

	config appconfig.Config
	logger app.Logger
}

// scmFactoryAdapter narrows the concrete client factory to the port
type scmFactoryAdapter struct {
	inner *github.Factory
}

func (a *scmFactoryAdapter) ForRepo(owner, repo string) (port.SourceControl, error) {
	return a.inner.ForRepo(owner, repo)
}

// NewContainer creates and initializes the container
func NewContainer(cfg appconfig.Config, logger app.Logger) (*Container, error) {
	c := &Container{config: cfg, logger: logger}

	if err := c.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	c.initializeApplication()

	return c, nil
}

func (c *Container) initializeInfrastructure() error {
	dbPath := c.config.DBPath()
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	c.db = db

	if err := sqliterepo.NewMigrator(db).Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	c.entityRepo = sqliterepo.NewEntityRepository(db)
	c.runRepo = sqliterepo.NewRunRepository(db)
	c.lockRepo = sqliterepo.NewLockRepository(db)
	c.idempotencyRepo = sqliterepo.NewIdempotencyRepository(db)
	c.snapshotRepo = sqliterepo.NewSnapshotRepository(db)
	c.closureRepo = sqliterepo.NewClosureRepository(db)
	c.eventRepo = sqliterepo.NewEventRepository(db)
	c.stopDecisionRepo = sqliterepo.NewStopDecisionRepository(db)

	factory := github.NewFactory(c.config.GitHubToken(), c.config.GitHubBaseURL(), c.config.AllowedRepos())
	c.scmFactory = &scmFactoryAdapter{inner: factory}

	return nil
}

func (c *Container) initializeApplication() {
	c.mirror = mirror.NewService(c.scmFactory, c.snapshotRepo, c.logger)

	executors := step.All(step.Deps{
		Entities:    c.entityRepo,
		Snapshots:   c.snapshotRepo,
		Closures:    c.closureRepo,
		Events:      c.eventRepo,
		StopLog:     c.stopDecisionRepo,
		Mirror:      c.mirror,
		SCM:         c.scmFactory,
		Lawbook:     c.config.Lawbook(),
		MergeMethod: c.config.MergeMethod(),
		Logger:      c.logger,
	})

	c.coordinator = advance.New(
		c.entityRepo,
		c.runRepo,
		c.lockRepo,
		c.idempotencyRepo,
		c.snapshotRepo,
		c.closureRepo,
		c.eventRepo,
		executors,
		c.config.LockTTL(),
		c.config.IdemTTL(),
		c.logger,
	)
}

// Start performs startup housekeeping: expired locks and idempotency
// records are swept so a crashed run never wedges the next one.
func (c *Container) Start(ctx context.Context) error {
	locks, err := c.lockRepo.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup expired locks: %w", err)
	}
	records, err := c.idempotencyRepo.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup expired idempotency records: %w", err)
	}
	if locks > 0 || records > 0 {
		c.logger.Info("startup cleanup: removed %d expired lock(s), %d expired idempotency record(s)", locks, records)
	}
	return nil
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Coordinator returns the run coordinator
func (c *Container) Coordinator() *advance.Coordinator { return c.coordinator }

// EntityRepository returns the entity repository
func (c *Container) EntityRepository() repository.EntityRepository { return c.entityRepo }

// RunRepository returns the run repository
func (c *Container) RunRepository() repository.RunRepository { return c.runRepo }

// LockRepository returns the lock repository
func (c *Container) LockRepository() repository.LockRepository { return c.lockRepo }

// IdempotencyRepository returns the idempotency repository
func (c *Container) IdempotencyRepository() repository.IdempotencyRepository {
	return c.idempotencyRepo
}

// EventRepository returns the audit event repository
func (c *Container) EventRepository() repository.EventRepository { return c.eventRepo }

// StopDecisionRepository returns the stop-gate ledger
func (c *Container) StopDecisionRepository() repository.StopDecisionRepository {
	return c.stopDecisionRepo
}

// Mirror returns the evidence snapshot service
func (c *Container) Mirror() *mirror.Service { return c.mirror }

// Config returns the loaded configuration
func (c *Container) Config() appconfig.Config { return c.config }

// Logger returns the application logger
func (c *Container) Logger() app.Logger { return c.logger }
