package app

import (
	"context"
	"fmt"

	"github.com/kanbanlab/boardsync/internal/app/realtime"
	"github.com/kanbanlab/boardsync/internal/app/services/boards"
	"github.com/kanbanlab/boardsync/internal/app/services/cards"
	"github.com/kanbanlab/boardsync/internal/app/services/lists"
	"github.com/kanbanlab/boardsync/internal/app/storage"
	"github.com/kanbanlab/boardsync/internal/app/storage/memory"
	"github.com/kanbanlab/boardsync/internal/app/system"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Boards    storage.BoardStore
	Snapshots storage.SnapshotStore
	Ordering  storage.OrderingStore
}

// Application ties the board services and the realtime fan-out together and
// manages the lifecycle of its long-running components.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Boards *boards.Service
	Lists  *lists.Service
	Cards  *cards.Service

	Hub        *realtime.Hub
	Dispatcher *realtime.Dispatcher

	// Publisher is the snapshot fan-out path: the local hub by default, or
	// the redis bridge when one is attached.
	Publisher realtime.Publisher
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Boards == nil || stores.Snapshots == nil || stores.Ordering == nil {
		mem := memory.New()
		if stores.Boards == nil {
			stores.Boards = mem
		}
		if stores.Snapshots == nil {
			stores.Snapshots = mem
		}
		if stores.Ordering == nil {
			stores.Ordering = mem
		}
	}

	boardSvc := boards.New(stores.Boards, stores.Snapshots, log)
	listSvc := lists.New(stores.Boards, stores.Ordering, stores.Snapshots, log)
	cardSvc := cards.New(stores.Ordering, stores.Snapshots, log)

	hub := realtime.NewHub(log)

	return &Application{
		manager:    system.NewManager(),
		log:        log,
		Boards:     boardSvc,
		Lists:      listSvc,
		Cards:      cardSvc,
		Hub:        hub,
		Dispatcher: realtime.NewDispatcher(listSvc, cardSvc, log),
		Publisher:  hub,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// UsePublisher swaps the snapshot fan-out path. Call before Start.
func (a *Application) UsePublisher(pub realtime.Publisher) error {
	if pub == nil {
		return fmt.Errorf("publisher must not be nil")
	}
	a.Publisher = pub
	return nil
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
