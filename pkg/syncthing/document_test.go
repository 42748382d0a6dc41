package syncthing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "version": 37,
  "folders": [
    {
      "id": "proj1",
      "label": "proj1",
      "path": "/Users/x/Sync/proj1",
      "type": "sendreceive",
      "devices": [{"deviceID": "LOCAL", "introducedBy": ""}],
      "rescanIntervalS": 3600,
      "minDiskFree": {"value": 1, "unit": "%"}
    }
  ],
  "devices": [
    {"deviceID": "LOCAL", "name": "laptop", "addresses": ["dynamic"]}
  ],
  "gui": {"enabled": true, "address": "127.0.0.1:8385"},
  "options": {"maxSendKbps": 0, "unknownFutureField": 1.5e3}
}`

func parseSample(t *testing.T) Config {
	var cfg Config
	require.NoError(t, jsonCodec.Unmarshal([]byte(sampleConfig), &cfg))
	return cfg
}

func TestConfigAccessors(t *testing.T) {
	cfg := parseSample(t)

	folders := cfg.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, "proj1", folders[0].ID())
	assert.Equal(t, "/Users/x/Sync/proj1", folders[0].Path())
	assert.Equal(t, []string{"LOCAL"}, folders[0].DeviceIDs())
	assert.Equal(t, []string{"proj1"}, cfg.FolderIDs())

	devices := cfg.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "LOCAL", devices[0].ID())
	assert.Equal(t, "laptop", devices[0].Name())
	assert.Equal(t, []string{"dynamic"}, devices[0].Addresses())
	assert.True(t, cfg.HasDevice("LOCAL"))
	assert.False(t, cfg.HasDevice("REMOTE"))

	// Mutating a folder mutates the config it came from.
	folders[0].SetPath("/elsewhere")
	folders[0].AddDevice("REMOTE")
	folders[0].AddDevice("REMOTE")
	assert.Equal(t, "/elsewhere", cfg.Folders()[0].Path())
	assert.Equal(t, []string{"LOCAL", "REMOTE"}, cfg.Folders()[0].DeviceIDs())
}

func TestConfigRoundTripPreservesUnknownFields(t *testing.T) {
	cfg := parseSample(t)
	cfg.SetFolders(append(cfg.Folders(), NewFolder("proj2", "proj2", "/sync/proj2", "REMOTE")))

	out, err := jsonCodec.Marshal(cfg)
	require.NoError(t, err)

	assert.Contains(t, string(out), `"unknownFutureField":1.5e3`)
	assert.Contains(t, string(out), `"minDiskFree":{"unit":"%","value":1}`)
	assert.Contains(t, string(out), `"gui":{"address":"127.0.0.1:8385","enabled":true}`)

	var reparsed Config
	require.NoError(t, jsonCodec.Unmarshal(out, &reparsed))
	assert.Equal(t, []string{"proj1", "proj2"}, reparsed.FolderIDs())
	assert.Equal(t, []string{"REMOTE"}, reparsed.Folders()[1].DeviceIDs())
}

func TestDeepCopy(t *testing.T) {
	cfg := parseSample(t)
	copied, err := cfg.DeepCopy()
	require.NoError(t, err)

	copied.Folders()[0].SetPath("/changed")
	copied.Folders()[0].AddDevice("REMOTE")
	copied.SetDevices(append(copied.Devices(), NewDevice("REMOTE", "remote")))

	assert.Equal(t, "/Users/x/Sync/proj1", cfg.Folders()[0].Path())
	assert.Equal(t, []string{"LOCAL"}, cfg.Folders()[0].DeviceIDs())
	assert.False(t, cfg.HasDevice("REMOTE"))
	assert.True(t, copied.HasDevice("REMOTE"))
}

func TestNewFolder(t *testing.T) {
	f := NewFolder("proj1", "proj1", "/sync/proj1", "REMOTE")
	assert.Equal(t, "proj1", f.ID())
	assert.Equal(t, "/sync/proj1", f.Path())
	assert.Equal(t, []string{"REMOTE"}, f.DeviceIDs())
	assert.Equal(t, DefaultFolderType, f["type"])
	assert.Equal(t, true, f["fsWatcherEnabled"])
	assert.Equal(t, DefaultRescanIntervalS, f["rescanIntervalS"])
}

func TestNewDevice(t *testing.T) {
	d := NewDevice("REMOTE", "remote")
	assert.Equal(t, "REMOTE", d.ID())
	assert.Equal(t, []string{"dynamic"}, d.Addresses())
	assert.Equal(t, false, d["introducer"])
}
