package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const currentDatabaseVersion = 1

// checkDatabaseVersion fails if the database in dataDir was written by an
// incompatible version. A data directory without a version file is new.
func checkDatabaseVersion(dataDir string) error {
	versionBytes, err := os.ReadFile(versionFilePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}

	databaseVersion, err := strconv.Atoi(strings.TrimSpace(string(versionBytes)))
	if err != nil {
		return errors.Wrapf(err, "malformed database version file")
	}
	if databaseVersion != currentDatabaseVersion {
		return errors.Errorf("invalid database version %d. Expected version: %d",
			databaseVersion, currentDatabaseVersion)
	}
	return nil
}

func writeDatabaseVersion(dataDir string) error {
	versionString := strconv.Itoa(currentDatabaseVersion)
	err := os.WriteFile(versionFilePath(dataDir), []byte(versionString), 0600)
	return errors.WithStack(err)
}

func versionFilePath(dataDir string) string {
	return filepath.Join(dataDir, "version")
}
