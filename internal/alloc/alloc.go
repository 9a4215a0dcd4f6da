// Package alloc picks ports and names that are unlikely to collide with
// other harness processes running on the same host.
//
// Nothing here is transactional. A port is probed by binding :0 and releasing
// the socket straight away, so another process can grab it before the agent
// container binds it. That window is a known source of flakiness and is
// accepted; names rely on a random suffix wide enough to make collisions with
// leftovers from earlier runs negligible.
package alloc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"

	"github.com/cenkalti/backoff/v4"
)

// MaxInterfaceName is the Linux limit on interface name length (IFNAMSIZ-1).
const MaxInterfaceName = 15

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	// ErrNoFreePort is returned when every probe returned an excluded port.
	ErrNoFreePort = errors.New("no free port found")
	// ErrNoAllocatedPort is returned when a conflicting port is requested
	// before any port has been allocated.
	ErrNoAllocatedPort = errors.New("no port allocated yet")

	errPortExcluded = errors.New("port already used by this session")
)

// ListenFunc binds an ephemeral port, releases it and returns its number.
type ListenFunc func() (int, error)

// Allocator hands out ports and names.
type Allocator struct {
	attempts     int
	suffixLength int
	listen       ListenFunc
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithListenFunc replaces the OS port probe.
func WithListenFunc(fn ListenFunc) Option {
	return func(a *Allocator) { a.listen = fn }
}

// New returns an Allocator that tries at most attempts probes per port and
// appends suffixLength random characters to names.
func New(attempts, suffixLength int, opts ...Option) *Allocator {
	if attempts <= 0 {
		attempts = 1
	}
	if suffixLength <= 0 {
		suffixLength = 10
	}
	a := &Allocator{attempts: attempts, suffixLength: suffixLength, listen: listenEphemeral}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PickAvailablePort returns an OS-assigned free port that is not in excluded.
func (a *Allocator) PickAvailablePort(excluded []int) (int, error) {
	skip := make(map[int]struct{}, len(excluded))
	for _, p := range excluded {
		skip[p] = struct{}{}
	}

	tries := 0
	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(a.attempts-1))
	port, err := backoff.RetryWithData(func() (int, error) {
		tries++
		port, err := a.listen()
		if err != nil {
			return 0, fmt.Errorf("probe ephemeral port: %w", err)
		}
		if _, ok := skip[port]; ok {
			slog.Debug("Probed port already in use by session.", "port", port, "attempt", tries)
			return 0, errPortExcluded
		}
		return port, nil
	}, policy)
	if err != nil {
		return 0, fmt.Errorf("%w after %d attempts: %w", ErrNoFreePort, tries, err)
	}
	return port, nil
}

// PickConflictingPort returns the most recently allocated port so a second
// instance can be started on a port that is already taken.
func (a *Allocator) PickConflictingPort(allocated []int) (int, error) {
	if len(allocated) == 0 {
		return 0, ErrNoAllocatedPort
	}
	return allocated[len(allocated)-1], nil
}

// UniqueName returns prefix followed by a random alphanumeric suffix.
func (a *Allocator) UniqueName(prefix string) (string, error) {
	suffix, err := RandomString(a.suffixLength)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// InterfaceName returns a random interface name that fits the kernel limit.
// The suffix is shortened when prefix leaves too little room.
func (a *Allocator) InterfaceName(prefix string) (string, error) {
	if len(prefix) >= MaxInterfaceName {
		return "", fmt.Errorf("interface prefix %q leaves no room for a suffix", prefix)
	}
	n := min(a.suffixLength, MaxInterfaceName-len(prefix))
	suffix, err := RandomString(n)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// RandomString returns n characters drawn uniformly from [a-zA-Z0-9].
func RandomString(n int) (string, error) {
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate random name: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

func listenEphemeral() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
