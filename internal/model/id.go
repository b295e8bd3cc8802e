package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// IDKind prefixes an ID. IDs read kind_unixseconds_random, so a directory
// of traces named by run ID lists in start order.
type IDKind string

const (
	IDRun   IDKind = "run"
	IDEvent IDKind = "evt"
)

var idPattern = regexp.MustCompile(`^(run|evt)_([0-9]{10})_([0-9a-f]{8})$`)

func NewID(kind IDKind) (string, error) {
	if kind != IDRun && kind != IDEvent {
		return "", fmt.Errorf("invalid ID kind: %q", kind)
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return fmt.Sprintf("%s_%010d_%s", kind, time.Now().Unix(), hex.EncodeToString(b[:])), nil
}

// ParseID returns the kind and creation time encoded in id.
func ParseID(id string) (IDKind, time.Time, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("invalid ID format: %q", id)
	}
	secs, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse ID time %q: %w", id, err)
	}
	return IDKind(m[1]), time.Unix(secs, 0), nil
}
