package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/staykeep/internal/checklist"
	"github.com/starford/staykeep/internal/client"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/kvstore"
	"github.com/starford/staykeep/internal/legacymigrate"
	"github.com/starford/staykeep/internal/mcpserver"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
	"github.com/starford/staykeep/internal/selection"
)

// session is the client-side core: one user talking to a remote server,
// with selection and in-progress inspections kept in a local state file.
type session struct {
	api       *client.Client
	kv        *kvstore.File
	user      *identity.User
	selection *selection.Store
	checklist *checklist.Synchronizer
	migrator  *legacymigrate.Migrator
	notifier  notify.Notifier

	templates *client.Collection[models.ChecklistTemplate, *models.ChecklistTemplate]
	records   *client.Collection[models.InspectionRecord, *models.InspectionRecord]
	items     *client.Collection[models.InventoryItem, *models.InventoryItem]
	damage    *client.Collection[models.DamageReport, *models.DamageReport]
}

func openSession(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*session, error) {
	api, err := client.New(cfg.ServerURL, cfg.Token, client.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	kv, err := kvstore.OpenFile(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	user, err := api.User(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	notifier := notify.NewLog(logger)
	s := &session{
		api:       api,
		kv:        kv,
		user:      user,
		notifier:  notifier,
		templates: client.NewCollection[models.ChecklistTemplate](api, models.TableChecklistTemplates),
		records:   client.NewCollection[models.InspectionRecord](api, models.TableInspectionRecords),
		items:     client.NewCollection[models.InventoryItem](api, models.TableInventoryItems),
		damage:    client.NewCollection[models.DamageReport](api, models.TableDamageReports),
	}
	s.selection = selection.NewStore(
		client.NewCollection[models.Property](api, models.TableProperties),
		api, kv, notifier,
		selection.WithRequestTimeout(cfg.RequestTimeout),
		selection.WithLogger(logger),
	)
	s.checklist = checklist.NewSynchronizer(s.templates, s.records, checklist.NewActiveStore(kv), notifier)
	s.migrator = legacymigrate.New(
		s.items,
		client.NewCollection[models.InventoryCategory](api, models.TableInventoryCategories),
		kv, notifier,
		legacymigrate.WithClaimer(api),
		legacymigrate.WithProfileLookup(api),
		legacymigrate.WithRequestTimeout(cfg.RequestTimeout),
		legacymigrate.WithLogger(logger),
	)
	return s, nil
}

// RunMCP serves the MCP tools on stdio against a running server. Logs must
// not go to stdout; pass WithLogOutput(os.Stderr) or another writer.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.logOutput == nil {
		app.logOutput = os.Stderr
	}
	logger := app.logger()

	s, err := openSession(ctx, app.config.Client, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.selection.Start(ctx); err != nil {
		logger.Warn("initial property fetch failed", slog.String("error", err.Error()))
	}
	defer s.selection.Close()

	res, err := s.migrator.Migrate(ctx, s.user, false)
	if err != nil {
		logger.Warn("legacy inventory migration failed", slog.String("error", err.Error()))
	} else {
		logger.Info("legacy inventory migration", slog.String("status", string(res.Status)), slog.Int("migrated", res.Migrated))
	}

	srv := mcpserver.New(mcpserver.Deps{
		Selection: s.selection,
		Checklist: s.checklist,
		User:      s.user,
		Templates: s.templates,
		Records:   s.records,
		Items:     s.items,
		Damage:    s.damage,
		Photos:    s.api,
	})

	g, gCtx := errgroup.WithContext(ctx)

	// Another process sharing the state file may change the selection.
	g.Go(func() error {
		return s.kv.Watch(gCtx, logger, func(keys []string) {
			for _, k := range keys {
				if k == selection.KeySelectedProperty || k == selection.KeyPropertyMode {
					if err := s.selection.Refresh(gCtx); err != nil {
						logger.Warn("selection refresh failed", slog.String("error", err.Error()))
					}
					return
				}
			}
		})
	})

	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting on stdio")
		return srv.ServeStdio()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// MigrateLegacy runs the one-time inventory migration for the configured
// user and returns its outcome.
func MigrateLegacy(ctx context.Context, opts ...Option) (legacymigrate.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return legacymigrate.Result{}, err
	}
	logger := app.logger()

	s, err := openSession(ctx, app.config.Client, logger)
	if err != nil {
		return legacymigrate.Result{}, err
	}
	return s.migrator.Migrate(ctx, s.user, false)
}
