//go:build !linux

package netdev

// Netlink is unavailable off linux.
type Netlink struct{}

func NewNetlink() (*Netlink, error) {
	return nil, ErrUnsupported
}

func (Netlink) Add(string) error     { return ErrUnsupported }
func (Netlink) SetUp(string) error   { return ErrUnsupported }
func (Netlink) SetDown(string) error { return ErrUnsupported }
func (Netlink) Delete(string) error  { return ErrUnsupported }
