//go:build !windows

package watcher

import "time"

func newSource(time.Duration) (source, error) {
	return nil, ErrUnsupportedPlatform
}
