//go:build !unix

package preflight

import "errors"

var errUnsupported = errors.New("free-space check unsupported on this platform")

func freeBytes(dir string) (uint64, error) {
	return 0, errUnsupported
}
