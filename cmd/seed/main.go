// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"hivepos/internal/app"
	"hivepos/internal/config"
	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/infrastructure/storage/postgres"
	"hivepos/migrations"
	"hivepos/pkg/logger"
)

type demoProduct struct {
	sku, name, category string
	price, cost         string
	batches             []demoBatch
	// posName is how the card terminal labels the item.
	posName string
}

type demoBatch struct {
	number   string
	quantity int
	// expiresIn is relative to today; zero means no expiry.
	expiresIn time.Duration
}

var demoProducts = []demoProduct{
	{
		sku: "HON-500", name: "Raw Honey 500g", category: "honey", price: "120.00", cost: "55.00",
		posName: "Honey 500g",
		batches: []demoBatch{
			{number: "H24-01", quantity: 24, expiresIn: 180 * 24 * time.Hour},
			{number: "H24-02", quantity: 36, expiresIn: 365 * 24 * time.Hour},
		},
	},
	{
		sku: "HON-250", name: "Raw Honey 250g", category: "honey", price: "70.00", cost: "32.00",
		posName: "Honey 250g",
		batches: []demoBatch{
			{number: "H24-03", quantity: 48, expiresIn: 300 * 24 * time.Hour},
		},
	},
	{
		sku: "CMB-SQ", name: "Honeycomb Square", category: "comb", price: "95.00", cost: "40.00",
		posName: "Comb square",
		batches: []demoBatch{
			{number: "C24-01", quantity: 12, expiresIn: 90 * 24 * time.Hour},
		},
	},
	{
		sku: "CND-BW", name: "Beeswax Candle", category: "wax", price: "85.00",
		posName: "Candle",
		batches: []demoBatch{
			{number: "W24-01", quantity: 20},
		},
	},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.Migrate(ctx, postgres.NewTxManager(pool), migrations.FS); err != nil {
		log.Fatalw("failed to apply migrations", "error", err)
	}

	repos, err := app.PostgresRepositories(pool)
	if err != nil {
		log.Fatalw("failed to build repositories", "error", err)
	}
	svc := app.NewServices(repos, app.Options{
		JWTSecret:      cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})

	adminEmail, adminPassword := cfg.AdminEmail, cfg.AdminPassword
	if adminEmail == "" {
		adminEmail = "admin@hivepos.local"
	}
	if adminPassword == "" {
		adminPassword = "admin123"
	}
	created, err := app.EnsureAdmin(ctx, svc.Auth, adminEmail, adminPassword)
	if err != nil {
		log.Fatalw("failed to seed admin operator", "error", err)
	}
	log.Infow("admin operator", "email", adminEmail, "created", created)

	if os.Getenv("SEED_DEMO_DATA") != "true" {
		log.Info("seeding completed")
		return
	}

	if _, err := svc.Auth.CreateOperator(ctx, "clerk@hivepos.local", "clerk123", "Market Clerk", []string{appctx.RoleUser}); err != nil && !apperror.IsDuplicate(err) {
		log.Fatalw("failed to seed clerk operator", "error", err)
	}

	// Catalog writes are admin-only.
	adminCtx := appctx.WithUser(ctx, &appctx.UserContext{
		UserID:  id.Nil().String(),
		Email:   adminEmail,
		Roles:   []string{appctx.RoleAdmin},
		IsAdmin: true,
	})

	if err := seedDemoData(adminCtx, svc, log); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}
	log.Info("seeding completed")
}

func seedDemoData(ctx context.Context, svc *app.Services, log *logger.Logger) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var mappings []matching.Mapping

	for _, d := range demoProducts {
		if existing, err := svc.Products.FindActiveBySKU(ctx, d.sku); err == nil {
			log.Infow("product already exists, skipping", "sku", d.sku, "id", existing.ID)
			continue
		} else if !apperror.IsNotFound(err) {
			return fmt.Errorf("lookup %s: %w", d.sku, err)
		}

		p := product.NewProduct(d.sku, d.name, d.category, types.MustMoney(d.price))
		if d.cost != "" {
			p.CostPrice = types.SomeMoney(types.MustMoney(d.cost))
		}
		if err := svc.Products.Create(ctx, p); err != nil {
			return fmt.Errorf("create product %s: %w", d.sku, err)
		}

		for _, b := range d.batches {
			var expiry *time.Time
			if b.expiresIn > 0 {
				t := today.Add(b.expiresIn)
				expiry = &t
			}
			batch := stock.NewBatch(p.ID, b.number, b.quantity, today, expiry, p.CostPrice)
			if err := svc.Stock.Receive(ctx, batch); err != nil {
				return fmt.Errorf("receive batch %s: %w", b.number, err)
			}
		}

		if d.posName != "" {
			mappings = append(mappings, matching.NewMapping(matching.SourceYocoImport, d.posName, p.ID, d.posName))
		}
		log.Infow("product seeded", "sku", d.sku, "batches", len(d.batches))
	}

	if len(mappings) > 0 {
		if err := svc.Matching.Save(ctx, mappings); err != nil {
			return fmt.Errorf("save mappings: %w", err)
		}
	}

	event := market.NewEvent("Saturday Farmers Market", "Town Square", today, today.Add(24*time.Hour))
	if err := svc.Events.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	log.Infow("demo data seeded", "products", len(demoProducts), "mappings", len(mappings))
	return nil
}
