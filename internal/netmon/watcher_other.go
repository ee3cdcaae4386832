//go:build !linux && !darwin

package netmon

import "time"

const defaultPollInterval = 5 * time.Second

// NewWatcher falls back to polling where no native watcher exists.
func NewWatcher() Watcher {
	return NewPollWatcher(defaultPollInterval)
}
