package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseVersion(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, checkDatabaseVersion(dataDir), "a new data directory was rejected")

	require.NoError(t, writeDatabaseVersion(dataDir))
	require.NoError(t, checkDatabaseVersion(dataDir))

	require.NoError(t, os.WriteFile(versionFilePath(dataDir), []byte("7"), 0600))
	require.Error(t, checkDatabaseVersion(dataDir))

	require.NoError(t, os.WriteFile(versionFilePath(dataDir), []byte("seven"), 0600))
	require.Error(t, checkDatabaseVersion(dataDir))
}
