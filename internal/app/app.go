// Package app wires repositories into domain services. The server, the seed
// command and service-level tests share this wiring.
package app

import (
	"context"
	"fmt"
	"time"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	corenumerator "hivepos/internal/core/numerator"
	"hivepos/internal/core/tx"
	"hivepos/internal/domain"
	"hivepos/internal/domain/auth"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/internal/domain/salesimport"
	"hivepos/internal/infrastructure/numerator"
	"hivepos/internal/infrastructure/storage/memory"
	"hivepos/internal/infrastructure/storage/postgres"
)

// Repositories is one storage backend.
type Repositories struct {
	Products  product.Repository
	Events    market.Repository
	Stock     stock.Repository
	Mappings  matching.Repository
	Sales     sales.Repository
	Imports   salesimport.Repository
	Refunds   refund.Repository
	Operators auth.OperatorRepository

	TxManager tx.Manager
	Numerator corenumerator.Generator
	Publisher domain.EventPublisher
	Audit     domain.AuditLogger
}

// MemoryRepositories exposes an in-memory store as a backend.
func MemoryRepositories(s *memory.Store) Repositories {
	return Repositories{
		Products:  s.Products(),
		Events:    s.Events(),
		Stock:     s.Stock(),
		Mappings:  s.Mappings(),
		Sales:     s.Sales(),
		Imports:   s.Imports(),
		Refunds:   s.Refunds(),
		Operators: s.Operators(),
		TxManager: s.TxManager(),
		Numerator: numerator.NewMemory(),
		Publisher: s.Outbox(),
		Audit:     s.Audit(),
	}
}

// PostgresRepositories builds the Postgres backend over one pool.
func PostgresRepositories(pool *postgres.Pool) (Repositories, error) {
	txm := postgres.NewTxManager(pool)
	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		return Repositories{}, fmt.Errorf("audit service: %w", err)
	}
	return Repositories{
		Products:  postgres.NewProductRepo(txm),
		Events:    postgres.NewEventRepo(txm),
		Stock:     postgres.NewStockRepo(txm),
		Mappings:  postgres.NewMappingRepo(txm),
		Sales:     postgres.NewSalesRepo(txm),
		Imports:   postgres.NewImportRepo(txm),
		Refunds:   postgres.NewRefundRepo(txm),
		Operators: postgres.NewOperatorRepo(txm),
		TxManager: txm,
		Numerator: numerator.New(pool),
		Publisher: postgres.NewOutboxPublisher(txm),
		Audit:     audit,
	}, nil
}

// Options tunes services independently of the backend.
type Options struct {
	// Location interprets wall-clock export timestamps and event dates.
	Location *time.Location

	// RowFilter excludes parsed rows; nil keeps every row.
	RowFilter *salesimport.RowFilter

	AutoLinkEvents bool

	// MappingCache defaults to matching.NoopCache.
	MappingCache matching.Cache

	// Gateway handles card refunds; nil rejects them.
	Gateway refund.Gateway

	JWTSecret      string
	AccessTokenTTL time.Duration
	Auth           auth.ServiceConfig
}

// Services are the domain services behind the API.
type Services struct {
	Products *product.Service
	Events   *market.Service
	Stock    *stock.Service
	Matching *matching.Service
	Sales    *sales.Service
	Imports  *salesimport.Service
	Refunds  *refund.Service
	Auth     *auth.Service
	JWT      *auth.JWTService
}

// NewServices builds every service over one backend.
func NewServices(repos Repositories, opts Options) *Services {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	authCfg := opts.Auth
	if authCfg.MaxLoginAttempts == 0 {
		authCfg = auth.DefaultServiceConfig()
	}

	stockSvc := stock.NewService(repos.Stock, repos.TxManager)
	productSvc := product.NewService(repos.Products, repos.TxManager, stockSvc, repos.Audit)
	eventSvc := market.NewService(repos.Events, repos.TxManager, repos.Audit)
	matchingSvc := matching.NewService(repos.Mappings, opts.MappingCache, productSvc, repos.TxManager)

	salesSvc := sales.NewService(sales.ServiceConfig{
		Repo:      repos.Sales,
		TxManager: repos.TxManager,
		Products:  productSvc,
		Stock:     stockSvc,
		Numerator: repos.Numerator,
		Publisher: repos.Publisher,
	})

	importSvc := salesimport.NewService(salesimport.ServiceConfig{
		Batches:        repos.Imports,
		Orders:         repos.Sales,
		Settler:        salesSvc,
		Inventory:      stockSvc,
		Matching:       matchingSvc,
		Events:         eventSvc,
		Refunds:        repos.Refunds,
		TxManager:      repos.TxManager,
		Numerator:      repos.Numerator,
		Publisher:      repos.Publisher,
		Audit:          repos.Audit,
		Parser:         salesimport.NewParser(loc, opts.RowFilter),
		Location:       loc,
		AutoLinkEvents: opts.AutoLinkEvents,
	})

	refundSvc := refund.NewService(refund.ServiceConfig{
		Repo:      repos.Refunds,
		Orders:    repos.Sales,
		Stock:     stockSvc,
		Gateway:   opts.Gateway,
		TxManager: repos.TxManager,
		Numerator: repos.Numerator,
		Publisher: repos.Publisher,
		Audit:     repos.Audit,
	})

	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:         opts.JWTSecret,
		AccessTokenTTL: opts.AccessTokenTTL,
	})

	return &Services{
		Products: productSvc,
		Events:   eventSvc,
		Stock:    stockSvc,
		Matching: matchingSvc,
		Sales:    salesSvc,
		Imports:  importSvc,
		Refunds:  refundSvc,
		Auth:     auth.NewService(repos.Operators, jwtSvc, authCfg),
		JWT:      jwtSvc,
	}
}

// EnsureAdmin creates an admin operator unless one with the email already exists.
func EnsureAdmin(ctx context.Context, svc *auth.Service, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := svc.CreateOperator(ctx, email, password, "Administrator", []string{appctx.RoleAdmin})
	if apperror.IsDuplicate(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
