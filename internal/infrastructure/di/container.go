// Package di wires the orchestration core together. Manual dependency
// injection in dependency order: infrastructure, services, usecases.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"

	"github.com/weftworks/weft/internal/app"
	appconfig "github.com/weftworks/weft/internal/app/config"
	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/application/service"
	"github.com/weftworks/weft/internal/application/usecase/execution"
	"github.com/weftworks/weft/internal/application/usecase/orchestrate"
	"github.com/weftworks/weft/internal/domain/classify"
	"github.com/weftworks/weft/internal/domain/repository"
	"github.com/weftworks/weft/internal/infrastructure/gateway/provider"
	"github.com/weftworks/weft/internal/infrastructure/gateway/resolver"
	"github.com/weftworks/weft/internal/infrastructure/gateway/signing"
	"github.com/weftworks/weft/internal/infrastructure/gateway/storage"
	"github.com/weftworks/weft/internal/infrastructure/journal"
	"github.com/weftworks/weft/internal/infrastructure/persistence/file"
	"github.com/weftworks/weft/internal/infrastructure/persistence/sqlite"
	"github.com/weftworks/weft/internal/infrastructure/transaction"
)

// Container holds every wired dependency of a session.
type Container struct {
	config *appconfig.Config
	logger app.Logger

	db        *sql.DB
	txManager output.TransactionManager

	registry repository.ThreadRepository
	ledger   repository.BudgetLedger

	signer         output.Signer
	journal        output.Journal
	metaStore      output.MetaStore
	cancelStore    output.CancelStore
	storageGateway output.StorageGateway

	coordinator *service.CompletionCoordinator
	dispatcher  *service.Dispatcher
	capService  *service.CapabilityService

	runner       *execution.Runner
	orchestrator *orchestrate.Orchestrator
}

// NewContainer builds the container from loaded configuration.
func NewContainer(cfg *appconfig.Config) (*Container, error) {
	c := &Container{
		config: cfg,
		logger: app.NewLogger(cfg.LogLevel),
	}
	if err := c.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	if err := c.initServices(); err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	c.initUseCases()
	return c, nil
}

func (c *Container) initInfrastructure() error {
	if err := os.MkdirAll(c.config.Home, 0o755); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}

	db, err := sqlite.Open(c.config.DatabasePath())
	if err != nil {
		return err
	}
	c.db = db
	c.txManager = transaction.NewSQLiteTransactionManager(db)
	c.registry = sqlite.NewThreadRepository(db)
	c.ledger = sqlite.NewBudgetLedger(db, c.txManager)

	fs := afero.NewOsFs()
	signer, err := signing.NewEd25519Signer(fs, c.config.KeysDir())
	if err != nil {
		return err
	}
	c.signer = signer

	c.journal = journal.NewFileJournal(fs, c.config.ThreadsDir(), signer)
	c.metaStore = file.NewMetaStore(fs, c.config.ThreadsDir(), signer)
	c.cancelStore = file.NewPoisonStore(fs, c.config.ThreadsDir())

	switch c.config.Archive.Backend {
	case "s3":
		if c.config.Archive.Bucket == "" {
			return fmt.Errorf("archive backend s3 requires a bucket")
		}
		gw, err := storage.NewS3StorageGateway(context.Background(), storage.S3Config{
			Bucket: c.config.Archive.Bucket,
			Prefix: "weft/threads",
		})
		if err != nil {
			return fmt.Errorf("create s3 archive gateway: %w", err)
		}
		c.storageGateway = gw
	case "local":
		dir := c.config.Archive.LocalDir
		if dir == "" {
			dir = c.config.Home + "/archive"
		}
		c.storageGateway = storage.NewLocalStorageGateway(fs, dir)
	case "none":
		c.storageGateway = nil
	default:
		return fmt.Errorf("unknown archive backend %q", c.config.Archive.Backend)
	}
	return nil
}

func (c *Container) initServices() error {
	c.coordinator = service.NewCompletionCoordinator()
	c.dispatcher = service.NewDispatcher(c.config.Coordination.DispatchGroupCap)
	c.capService = service.NewCapabilityService(c.signer, c.config.TokenTTL())
	return nil
}

func (c *Container) initUseCases() {
	var providerGateway output.ProviderGateway
	if c.config.Provider.Bin != "" {
		providerGateway = provider.NewCLIProviderGateway(
			c.config.Provider.Bin, c.config.Provider.Args, c.config.CancelGrace())
	} else {
		providerGateway = provider.NewMockProviderGateway()
	}

	retry := classify.RetryPolicy{
		MaxAttempts:       c.config.Retry.MaxAttempts,
		BackoffBase:       secsDuration(c.config.Retry.BackoffBaseSeconds),
		BackoffCap:        secsDuration(c.config.Retry.BackoffCapSeconds),
		DefaultRetryAfter: secsDuration(c.config.Retry.DefaultRetryAfterSec),
		QuotaCooldown:     secsDuration(c.config.Retry.QuotaCooldownSeconds),
	}

	c.runner = execution.NewRunner(execution.RunnerDeps{
		Registry:    c.registry,
		Ledger:      c.ledger,
		Provider:    providerGateway,
		Resolver:    resolver.NewConfigResolver(c.config),
		Journal:     c.journal,
		Meta:        c.metaStore,
		Poison:      c.cancelStore,
		Coordinator: c.coordinator,
		Dispatcher:  c.dispatcher,
		Caps:        c.capService,
		Hooks:       c.config.Hooks,
		Retry:       retry,
		Logger:      c.logger,
		Archive:     c.storageGateway,
	})

	c.orchestrator = orchestrate.NewOrchestrator(orchestrate.OrchestratorDeps{
		Registry:      c.registry,
		Ledger:        c.ledger,
		Runner:        c.runner,
		Coordinator:   c.coordinator,
		Caps:          c.capService,
		Meta:          c.metaStore,
		Poison:        c.cancelStore,
		Journal:       c.journal,
		Logger:        c.logger,
		DefaultLimits: c.config.DefaultLimits,
		Staleness:     c.config.OrphanStaleness(),
	})
}

// Config returns the loaded configuration.
func (c *Container) Config() *appconfig.Config { return c.config }

// Logger returns the session logger.
func (c *Container) Logger() app.Logger { return c.logger }

// Orchestrator returns the session façade.
func (c *Container) Orchestrator() *orchestrate.Orchestrator { return c.orchestrator }

// Registry returns the thread registry.
func (c *Container) Registry() repository.ThreadRepository { return c.registry }

// Ledger returns the budget ledger.
func (c *Container) Ledger() repository.BudgetLedger { return c.ledger }

// Journal returns the execution log.
func (c *Container) Journal() output.Journal { return c.journal }

// Close releases held resources.
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func secsDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
