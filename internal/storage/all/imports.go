// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init function of each backend, which registers its
// factory with the storage package. After importing it, storage.New accepts
// the kinds "mysql", "postgres", "sqlite" and "mssql".
//
// A binary that needs only a subset can import the backends it wants
// directly instead.
package all

import (
	_ "gamestats/internal/storage/mssql"
	_ "gamestats/internal/storage/mysql"
	_ "gamestats/internal/storage/postgres"
	_ "gamestats/internal/storage/sqlite"
)
