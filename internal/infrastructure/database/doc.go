// Package database provides SQLite connection management and schema
// migrations for the WiZ binding core.
//
// The identity store (committed binding entries) and home-config store
// (cached home-structure document) both persist through the single
// connection this package manages. SQLite's single-writer model combined
// with SetMaxOpenConns(1) gives the serialised-write guarantee the
// binding flow relies on for duplicate-identity prevention.
//
// Migrations are embedded SQL files registered by the migrations package
// and applied on startup:
//
//	db, err := database.Open(ctx, database.Config{Path: "data/wizbind.db", WALMode: true, BusyTimeout: 5})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
package database
