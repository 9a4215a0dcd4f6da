//go:build linux

package netdev

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Netlink manages dummy links through the kernel netlink API. It needs
// CAP_NET_ADMIN.
type Netlink struct{}

// NewNetlink returns a netlink-backed Manager.
func NewNetlink() (*Netlink, error) {
	return &Netlink{}, nil
}

// Add creates a dummy link. An existing link with the same name is an error,
// since the session would otherwise delete something it does not own.
func (Netlink) Add(name string) error {
	if _, err := netlink.LinkByName(name); err == nil {
		return fmt.Errorf("create dummy interface %q: already exists", name)
	} else if !isNotFound(err) {
		return fmt.Errorf("find interface %q: %w", name, err)
	}

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create dummy interface %q: %w", name, err)
	}
	return nil
}

func (Netlink) SetUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("find interface %q: %w", name, err)
	}
	if link.Attrs().Flags&unix.IFF_UP != 0 {
		return nil
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set interface %q up: %w", name, err)
	}
	return nil
}

func (Netlink) SetDown(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("find interface %q: %w", name, err)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("set interface %q down: %w", name, err)
	}
	return nil
}

func (Netlink) Delete(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("find interface %q: %w", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete interface %q: %w", name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf)
}
