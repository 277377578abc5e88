// Package app composes the board services into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Service container, wiring, and lifecycle
//	├── apperr/             # Error taxonomy shared by every surface
//	├── domain/             # Domain models (pure data structures)
//	│   ├── board/          # Boards and ownership
//	│   ├── list/           # Board columns with dense 1-based positions
//	│   └── card/           # Tasks inside lists
//	├── ordering/           # Position reconciliation plans
//	├── snapshot/           # Full ordered board materialization
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store and transaction interfaces
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Command services (boards, lists, cards)
//	├── realtime/           # Websocket sessions, dispatcher, hub, redis bridge
//	├── httpapi/            # REST handlers and the websocket entry point
//	├── system/             # Lifecycle management
//	├── runtime/            # Config-driven process wiring
//	└── metrics/            # Prometheus collectors
//
// Commands arrive over websocket messages or REST calls, run through the
// position reconciler inside one storage transaction, and finish with a full
// board snapshot broadcast to every subscribed session.
package app
