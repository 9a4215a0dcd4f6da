// Package netdev manages the dummy interface that captures are replayed onto.
package netdev

import "errors"

// ErrUnsupported is returned on platforms without netlink.
var ErrUnsupported = errors.New("dummy interfaces are only supported on linux")

// Manager creates and tears down a virtual link. SetDown and Delete treat a
// missing link as success.
type Manager interface {
	Add(name string) error
	SetUp(name string) error
	SetDown(name string) error
	Delete(name string) error
}
