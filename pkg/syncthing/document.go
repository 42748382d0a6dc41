package syncthing

import (
	"encoding/json"
	"strconv"

	"github.com/mitchellh/copystructure"

	"github.com/sidkik/turbosync/pkg/errors"
)

// Document is a decoded JSON object returned by the daemon. Numbers are kept
// as json.Number so that values round-trip unchanged.
type Document map[string]interface{}

// String returns the string value of `key`, or "" if it's missing or not a
// string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int64 returns the integer value of `key`.
func (d Document) Int64(key string) (int64, bool) {
	return toInt64(d[key])
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Config is the daemon's full configuration document. The daemon owns the
// schema, so only the folder and device lists are accessed through typed
// helpers. Every other field is carried through untouched.
type Config Document

// Folder is one entry of the config's folder list.
type Folder map[string]interface{}

// Device is one entry of the config's device list.
type Device map[string]interface{}

// Folders returns the config's folder entries. The entries share memory with
// the config, so mutating a Folder mutates the config.
func (c Config) Folders() []Folder {
	var folders []Folder
	for _, obj := range objects(c["folders"]) {
		folders = append(folders, Folder(obj))
	}
	return folders
}

// SetFolders replaces the config's folder list.
func (c Config) SetFolders(folders []Folder) {
	list := make([]interface{}, 0, len(folders))
	for _, f := range folders {
		list = append(list, map[string]interface{}(f))
	}
	c["folders"] = list
}

// Devices returns the config's device entries.
func (c Config) Devices() []Device {
	var devices []Device
	for _, obj := range objects(c["devices"]) {
		devices = append(devices, Device(obj))
	}
	return devices
}

// SetDevices replaces the config's device list.
func (c Config) SetDevices(devices []Device) {
	list := make([]interface{}, 0, len(devices))
	for _, d := range devices {
		list = append(list, map[string]interface{}(d))
	}
	c["devices"] = list
}

// FolderIDs returns the ID of every folder in the config.
func (c Config) FolderIDs() []string {
	var ids []string
	for _, f := range c.Folders() {
		ids = append(ids, f.ID())
	}
	return ids
}

// HasDevice returns whether a device with the given ID is configured.
func (c Config) HasDevice(id string) bool {
	for _, d := range c.Devices() {
		if d.ID() == id {
			return true
		}
	}
	return false
}

// DeepCopy returns a copy of the config that shares no memory with the
// original.
func (c Config) DeepCopy() (Config, error) {
	copied, err := copystructure.Copy(map[string]interface{}(c))
	if err != nil {
		return nil, errors.WithContext(err, "copy config")
	}
	return Config(copied.(map[string]interface{})), nil
}

func objects(v interface{}) []map[string]interface{} {
	list, _ := v.([]interface{})
	var objs []map[string]interface{}
	for _, item := range list {
		if obj, ok := item.(map[string]interface{}); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// ID returns the folder's unique ID.
func (f Folder) ID() string {
	id, _ := f["id"].(string)
	return id
}

// Path returns the folder's local path.
func (f Folder) Path() string {
	path, _ := f["path"].(string)
	return path
}

// SetPath sets the folder's local path.
func (f Folder) SetPath(path string) {
	f["path"] = path
}

// DeviceIDs returns the IDs of the devices the folder is shared with.
func (f Folder) DeviceIDs() []string {
	var ids []string
	for _, obj := range objects(f["devices"]) {
		if id, ok := obj["deviceID"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasDevice returns whether the folder is shared with the given device.
func (f Folder) HasDevice(id string) bool {
	for _, existing := range f.DeviceIDs() {
		if existing == id {
			return true
		}
	}
	return false
}

// AddDevice shares the folder with the given device. Existing shares are
// left alone.
func (f Folder) AddDevice(id string) {
	if f.HasDevice(id) {
		return
	}
	list, _ := f["devices"].([]interface{})
	f["devices"] = append(list, map[string]interface{}{
		"deviceID":     id,
		"introducedBy": "",
	})
}

// ID returns the device's unique ID.
func (d Device) ID() string {
	id, _ := d["deviceID"].(string)
	return id
}

// Name returns the device's human readable name.
func (d Device) Name() string {
	name, _ := d["name"].(string)
	return name
}

// Addresses returns the addresses the daemon dials to reach the device.
func (d Device) Addresses() []string {
	list, _ := d["addresses"].([]interface{})
	var addrs []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			addrs = append(addrs, s)
		}
	}
	return addrs
}

// Defaults for folders created by turbosync.
const (
	DefaultFolderType      = "sendreceive"
	DefaultRescanIntervalS = 3600
	DefaultFsWatcherDelayS = 10
)

// NewFolder returns a folder entry with turbosync's defaults that's shared
// with `deviceID`.
func NewFolder(id, label, path, deviceID string) Folder {
	f := Folder{
		"id":               id,
		"label":            label,
		"path":             path,
		"type":             DefaultFolderType,
		"rescanIntervalS":  DefaultRescanIntervalS,
		"fsWatcherEnabled": true,
		"fsWatcherDelayS":  DefaultFsWatcherDelayS,
		"devices":          []interface{}{},
	}
	f.AddDevice(deviceID)
	return f
}

// NewDevice returns a minimal device entry that's discovered dynamically and
// can't introduce other devices.
func NewDevice(id, name string) Device {
	return Device{
		"deviceID":   id,
		"name":       name,
		"addresses":  []interface{}{"dynamic"},
		"introducer": false,
	}
}
