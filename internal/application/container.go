// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/streakworks/chainrules/internal/application/ports"
	"github.com/streakworks/chainrules/internal/application/rules"
	"github.com/streakworks/chainrules/internal/infrastructure/config"
	"github.com/streakworks/chainrules/internal/infrastructure/logging"
	"github.com/streakworks/chainrules/internal/infrastructure/sqlite"
	"github.com/streakworks/chainrules/internal/infrastructure/storage"
	"github.com/streakworks/chainrules/internal/infrastructure/tracing"
	"github.com/streakworks/chainrules/internal/infrastructure/watch"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Database connection
	dbConn *sqlite.Connection
	db     *sql.DB

	// Repositories
	ruleRepo  ports.RuleCollectionPort
	usageRepo ports.UsageCollectionPort

	// Engine services
	store       *rules.Store
	resolver    *rules.ScopeResolver
	detector    *rules.DuplicationDetector
	reconciler  *rules.Reconciler
	checker     *rules.IntegrityChecker
	classifier  *rules.ErrorClassifier
	coordinator *rules.RecoveryCoordinator

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	// Database file watcher
	watcher *watch.Watcher
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c.initRepositories()
	c.initServices()

	return c, nil
}

// initObservability initializes the logger and tracer.
func (c *Container) initObservability() error {
	level := logging.Level(c.config.Logging.Level)
	if c.verbose {
		level = logging.LevelDebug
	}
	c.logger = logging.Init(logging.Config{
		Level:      level,
		Format:     logging.Format(c.config.Logging.Format),
		Output:     os.Stderr,
		TimeFormat: logging.DefaultConfig().TimeFormat,
	})

	tracer, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:      c.config.Tracing.Enabled,
		ExporterType: tracing.ExporterType(c.config.Tracing.ExporterType),
		OTLPEndpoint: c.config.Tracing.OTLPEndpoint,
		ServiceName:  c.config.Tracing.ServiceName,
		Environment:  "development",
		SampleRate:   c.config.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	c.tracer = tracer
	return nil
}

// initDatabase initializes the SQLite database connection.
func (c *Container) initDatabase() error {
	conn, err := sqlite.NewConnection(c.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	c.dbConn = conn
	c.db = conn.DB()
	return nil
}

// initRepositories initializes all storage repositories.
func (c *Container) initRepositories() {
	c.ruleRepo = storage.NewRuleRepository(c.db)
	c.usageRepo = storage.NewUsageRepository(c.db)
}

// initServices initializes the rule engine services.
func (c *Container) initServices() {
	c.store = rules.NewStore(c.ruleRepo, c.usageRepo,
		rules.WithLogger(c.logger),
		rules.WithTracer(c.tracer),
	)
	c.resolver = rules.NewScopeResolver(c.store)
	c.detector = rules.NewDuplicationDetector(c.store)
	c.reconciler = rules.NewReconciler(c.store,
		rules.WithStateTTL(c.config.Reconciler.StateTTL),
	)
	c.checker = rules.NewIntegrityChecker(c.store)
	c.classifier = rules.NewErrorClassifier()
	c.coordinator = rules.NewRecoveryCoordinator(c.classifier, c.logger)
	rules.RegisterDefaultStrategies(c.coordinator, c.checker)
}

// StartBackground starts the background workers: the expired-state sweeper,
// an optional startup integrity scan, and, when enabled, the database file
// watcher. It returns immediately.
func (c *Container) StartBackground(ctx context.Context) error {
	c.reconciler.StartSweeper(ctx, c.config.Reconciler.SweepInterval)

	if c.config.Integrity.ScanOnStartup {
		go c.startupScan(ctx)
	}

	if !c.config.Watcher.Enabled {
		return nil
	}

	watcher, err := watch.NewWatcher(c.dbConn.Path(), watch.Config{
		DebounceDuration: c.config.Watcher.Debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to create database watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to start database watcher: %w", err)
	}
	c.watcher = watcher

	go c.consumeWatchEvents(ctx)
	return nil
}

// startupScan runs one integrity scan shortly after startup and, when
// configured, applies the automatic fixes.
func (c *Container) startupScan(ctx context.Context) {
	report, err := c.checker.Check(ctx)
	if err != nil {
		c.logger.Error("startup integrity scan failed", "error", err)
		return
	}
	if len(report.Issues) == 0 {
		return
	}
	if !c.config.Integrity.AutoFix {
		c.logger.Warn("startup integrity scan found issues",
			"issues", len(report.Issues),
			"auto_fixable", report.AutoFixableCount(),
		)
		return
	}
	fixed := 0
	for _, result := range c.checker.AutoFixIssues(ctx, report.Issues) {
		if result.Fixed {
			fixed++
		}
	}
	c.logger.Info("startup integrity repair finished",
		"issues", len(report.Issues), "fixed", fixed)
}

// consumeWatchEvents reacts to external database modifications by logging
// the event and running an integrity scan.
func (c *Container) consumeWatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.logger.Warn("database modified outside this process",
				"path", event.Path,
				"event", string(event.Type),
			)
			report, err := c.checker.Check(ctx)
			if err != nil {
				c.logger.Error("integrity scan after external modification failed", "error", err)
				continue
			}
			if len(report.Issues) > 0 {
				c.logger.Warn("integrity issues detected after external modification",
					"issues", len(report.Issues),
				)
			}
		case err, ok := <-c.watcher.Errors():
			if !ok {
				return
			}
			c.logger.Error("database watcher error", "error", err)
		}
	}
}

// Config returns the container configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Store returns the rule store.
func (c *Container) Store() *rules.Store {
	return c.store
}

// Resolver returns the scope resolver.
func (c *Container) Resolver() *rules.ScopeResolver {
	return c.resolver
}

// Detector returns the duplication detector.
func (c *Container) Detector() *rules.DuplicationDetector {
	return c.detector
}

// Reconciler returns the state reconciler.
func (c *Container) Reconciler() *rules.Reconciler {
	return c.reconciler
}

// Checker returns the integrity checker.
func (c *Container) Checker() *rules.IntegrityChecker {
	return c.checker
}

// Coordinator returns the recovery coordinator.
func (c *Container) Coordinator() *rules.RecoveryCoordinator {
	return c.coordinator
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// DatabasePath returns the path of the SQLite database file.
func (c *Container) DatabasePath() string {
	return c.dbConn.Path()
}

// Close releases all container resources.
func (c *Container) Close() error {
	var firstErr error

	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.tracer != nil {
		if err := c.tracer.Shutdown(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.dbConn != nil {
		if err := c.dbConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
