package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

const testDevice = domain.DeviceID("meter_local_9000_1")

func TestFileStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileBaselineStore(fs, "/data")
	require.NoError(t, err)

	record := domain.BaselineRecord{BaselineEnergy: 123.456, BaselineMonth: 6}
	require.NoError(t, store.Save(testDevice, record))

	loaded, err := store.Load(testDevice)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record, *loaded)
}

func TestFileStoreLoadAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileBaselineStore(fs, "/data")
	require.NoError(t, err)

	loaded, err := store.Load(testDevice)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileBaselineStore(fs, "/data")
	require.NoError(t, err)

	require.NoError(t, store.Save(testDevice, domain.BaselineRecord{BaselineEnergy: 1, BaselineMonth: 6}))
	require.NoError(t, store.Save(testDevice, domain.BaselineRecord{BaselineEnergy: 2, BaselineMonth: 7}))

	loaded, err := store.Load(testDevice)
	require.NoError(t, err)
	assert.Equal(t, 2.0, loaded.BaselineEnergy)
	assert.Equal(t, 7, loaded.BaselineMonth)
}

func TestFileStoreDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileBaselineStore(fs, "/data")
	require.NoError(t, err)

	require.NoError(t, store.Save(testDevice, domain.BaselineRecord{BaselineEnergy: 1, BaselineMonth: 6}))
	require.NoError(t, store.Delete(testDevice))

	loaded, err := store.Load(testDevice)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// deleting again is not an error
	assert.NoError(t, store.Delete(testDevice))
}

func TestFileStoreCorruptRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileBaselineStore(fs, "/data")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/data/"+string(testDevice)+".json", []byte("{not json"), 0o644))

	_, err = store.Load(testDevice)
	assert.Error(t, err)
}
