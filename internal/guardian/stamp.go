// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package guardian

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// ErrNoStamp is returned by ReadStamp when the watchdog never wrote one.
var ErrNoStamp = errors.New("liveness stamp not found")

// Stamp is the watchdog's liveness record.
type Stamp struct {
	PID int       `json:"pid"`
	At  time.Time `json:"at"`
}

// Age returns how old the stamp is at now.
func (s Stamp) Age(now time.Time) time.Duration {
	return now.Sub(s.At)
}

// WriteStamp atomically replaces the stamp at path.
func WriteStamp(path string, s Stamp) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stamp: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create stamp directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write stamp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace stamp: %w", err)
	}
	return nil
}

// ReadStamp loads the stamp at path.
func ReadStamp(path string) (Stamp, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Stamp{}, ErrNoStamp
	}
	if err != nil {
		return Stamp{}, fmt.Errorf("read stamp: %w", err)
	}
	var s Stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return Stamp{}, fmt.Errorf("decode stamp %s: %w", path, err)
	}
	return s, nil
}
