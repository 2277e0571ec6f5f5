package app

import (
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
)

// Health is the serve loop's last-request snapshot in runtime-state/health.json
type Health struct {
	TS          string `json:"ts"`
	PID         int    `json:"pid"`
	Requests    int    `json:"requests"`
	LastChainID string `json:"lastChainId,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	OK          bool   `json:"ok"`
	Error       string `json:"error"`
}

// WriteHealth stamps h with the current time and writes it atomically
func WriteHealth(fsys afero.Fs, path string, h *Health) error {
	h.TS = time.Now().UTC().Format(time.RFC3339Nano)
	return fs.WriteJSONAtomic(fsys, path, h)
}

// ReadHealth loads the last snapshot. found is false when serve never ran.
func ReadHealth(fsys afero.Fs, path string) (h Health, found bool, err error) {
	found, err = fs.ReadJSON(fsys, path, &h)
	return h, found, err
}
