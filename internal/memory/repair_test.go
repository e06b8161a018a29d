package memory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_CanonicalisesAndBacksUp(t *testing.T) {
	path := tempStorePath(t)
	original := "{\"session_id\":\"a\"}\ngarbage\n{\"session_id\":\"b\"}\n"
	writeFile(t, path, original)

	report, err := Repair(path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, path+BackupSuffix, report.Backup)

	backup, err := os.ReadFile(report.Backup)
	require.NoError(t, err)
	assert.Equal(t, original, string(backup))

	info, err := os.Stat(report.Backup)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"session_id":"a"},{"session_id":"b"}]`, string(data))
}

func TestRepair_RefusesExistingBackup(t *testing.T) {
	path := tempStorePath(t)
	writeFile(t, path, "garbage")
	writeFile(t, path+BackupSuffix, "earlier backup")

	_, err := Repair(path)
	require.ErrorIs(t, err, ErrBackupExists)

	backup, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, "earlier backup", string(backup))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestRepair_MissingFile(t *testing.T) {
	_, err := Repair(tempStorePath(t))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRepair_AllInvalidWritesEmptyArray(t *testing.T) {
	path := tempStorePath(t)
	writeFile(t, path, "bad\nworse\n")

	report, err := Repair(path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Records)
	assert.Equal(t, 2, report.Skipped)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}
