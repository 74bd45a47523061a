package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"cargohold/internal/constants"
)

// OpenDatabase opens a SQLite database at the given path and applies pragmas.
// _txlock=immediate makes BEGIN take the write lock up front, which
// serializes write transactions from concurrent event-sink appenders.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := ApplyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ApplyPragmas applies the standard pragma set to an open connection.
func ApplyPragmas(db *sql.DB) error {
	for _, pragma := range constants.SQLitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return err
		}
	}
	return nil
}

// InitServiceDB opens or creates the service database and initializes the
// schema. This single database holds the authority records, the security
// event log, and the transfer index.
func InitServiceDB(path string) (*sql.DB, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(GetServiceSchema()); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
