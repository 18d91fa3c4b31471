// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package power

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsReader reads the battery level from the Linux power-supply class
// (/sys/class/power_supply/BAT*/capacity).
type SysfsReader struct {
	// Root is the power-supply directory.
	Root string
}

// ErrNoBattery is returned when no battery supply is found under Root.
var ErrNoBattery = errors.New("no battery found")

// Level implements Reader.
func (r SysfsReader) Level() (int, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		return 0, fmt.Errorf("read power supplies: %w", err)
	}

	for _, entry := range entries {
		capPath := filepath.Join(r.Root, entry.Name(), "capacity")
		raw, err := os.ReadFile(capPath)
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil || level < 0 || level > 100 {
			continue
		}
		return level, nil
	}
	return 0, ErrNoBattery
}
