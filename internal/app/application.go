// Package app wires the marketplace services to their stores and manages
// their lifecycle as a unit.
package app

import (
	"context"
	"fmt"

	"github.com/swapam/marketplace/internal/app/services/items"
	"github.com/swapam/marketplace/internal/app/services/matching"
	"github.com/swapam/marketplace/internal/app/services/swaps"
	"github.com/swapam/marketplace/internal/app/services/users"
	"github.com/swapam/marketplace/internal/app/storage"
	"github.com/swapam/marketplace/internal/app/storage/memory"
	"github.com/swapam/marketplace/internal/app/system"
	"github.com/swapam/marketplace/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Items storage.ItemStore
	Swaps storage.SwapStore
	Users storage.UserStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Items    *items.Service
	Swaps    *swaps.Service
	Users    *users.Service
	Matching *matching.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Items == nil {
		stores.Items = mem
	}
	if stores.Swaps == nil {
		stores.Swaps = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}

	manager := system.NewManager()

	itemService := items.New(stores.Items, stores.Swaps, log)
	swapService := swaps.New(stores.Items, stores.Swaps, stores.Users, log)
	userService := users.New(stores.Users, log)
	matchService := matching.New(stores.Items, log)

	for _, name := range []string{"items", "swaps", "users", "matching"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Items:    itemService,
		Swaps:    swapService,
		Users:    userService,
		Matching: matchService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
