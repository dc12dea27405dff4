// Package drivers opens a database.Database by driver name.
package drivers

import (
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/infrastructure/db/database/badgerdb"
	"github.com/utxonode/chaind/infrastructure/db/database/ldb"
)

const (
	// LevelDB is the name of the goleveldb driver.
	LevelDB = "leveldb"

	// Badger is the name of the badger driver.
	Badger = "badger"
)

// SupportedDrivers returns the names of all supported database drivers.
func SupportedDrivers() []string {
	return []string{LevelDB, Badger}
}

// Open opens the database of the given driver type at path.
func Open(dbType string, path string, cacheSizeMiB int) (database.Database, error) {
	switch dbType {
	case LevelDB:
		return ldb.NewLevelDB(path, cacheSizeMiB)
	case Badger:
		return badgerdb.NewBadgerDB(path, cacheSizeMiB)
	}
	return nil, errors.Errorf("unsupported database type %q, "+
		"supported types are %v", dbType, SupportedDrivers())
}
