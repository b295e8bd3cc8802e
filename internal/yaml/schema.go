package yaml

import (
	"errors"
	"fmt"

	yamlv3 "gopkg.in/yaml.v3"
)

const CurrentSchemaVersion = 1

const (
	FileTypeTree       = "tree"
	FileTypeGraph      = "graph"
	FileTypeRunRequest = "run_request"
	FileTypeTrace      = "trace"
)

// ErrBadHeader is wrapped by every header check failure.
var ErrBadHeader = errors.New("bad schema header")

// Header is the pair of fields every conductor YAML file starts with.
type Header struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

// CheckHeader parses the header of content and checks that it is a
// supported version of the want file type.
func CheckHeader(content []byte, want string) error {
	var h Header
	if err := yamlv3.Unmarshal(content, &h); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	switch {
	case h.SchemaVersion == 0:
		return fmt.Errorf("%w: missing schema_version", ErrBadHeader)
	case h.SchemaVersion < 0 || h.SchemaVersion > CurrentSchemaVersion:
		return fmt.Errorf("%w: unsupported schema_version %d (supported: 1..%d)", ErrBadHeader, h.SchemaVersion, CurrentSchemaVersion)
	case h.FileType == "":
		return fmt.Errorf("%w: missing file_type", ErrBadHeader)
	case h.FileType != want:
		return fmt.Errorf("%w: file_type is %q, expected %q", ErrBadHeader, h.FileType, want)
	}
	return nil
}
