package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/errors"
)

// versionHeader is decoded before the rest of the file so that a file
// written by a newer turbosync is reported as a version mismatch, not as a
// list of unknown fields.
type versionHeader struct {
	Version string `json:"version"`
}

// ParseError is returned when a config file isn't valid YAML, or doesn't
// match the expected fields and types.
type ParseError struct {
	Path string
	Err  error
}

func (err ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", err.Path, err.Err)
}

func (err ParseError) Unwrap() error {
	return err.Err
}

// FriendlyMessage implements errors.FriendlyError. The YAML library doesn't
// report line numbers for type errors, so the parser's message is passed on
// as is.
func (err ParseError) FriendlyMessage() string {
	return fmt.Sprintf("turbosync couldn't read its config file %q.\n"+
		"Check that each field has the right type, and that no field names are "+
		"misspelled. Running `turbosync config` rewrites the file.\n\n"+
		"The parser reported: %s", err.Path, err.Err)
}

// VersionError is returned when a config file was written for a different
// config version.
type VersionError struct {
	Path     string
	Expected string
	Actual   string
}

func (err VersionError) Error() string {
	return err.FriendlyMessage()
}

// FriendlyMessage implements errors.FriendlyError.
func (err VersionError) FriendlyMessage() string {
	return fmt.Sprintf("The config file %q uses config version %q, but this "+
		"turbosync only understands %q.\n"+
		"Upgrade turbosync, or run `turbosync config` to rewrite the file.",
		err.Path, err.Actual, err.Expected)
}

// readVersioned strictly decodes the YAML file at `path` into `out`. A file
// without a version is treated as `defaultVersion`.
func readVersioned(path, defaultVersion, expVersion string, out interface{}) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	if len(bytes.TrimSpace(configBytes)) == 0 {
		return ParseError{Path: path, Err: errors.New("the file is empty")}
	}

	var header versionHeader
	if err := yaml.Unmarshal(configBytes, &header); err != nil {
		return ParseError{Path: path, Err: err}
	}
	if header.Version == "" {
		header.Version = defaultVersion
	}
	if header.Version != expVersion {
		return VersionError{Path: path, Expected: expVersion, Actual: header.Version}
	}

	if err := yaml.UnmarshalStrict(configBytes, out, yaml.DisallowUnknownFields); err != nil {
		return ParseError{Path: path, Err: err}
	}
	return nil
}
