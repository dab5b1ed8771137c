package pci

import (
	"github.com/safchain/ethtool"
	"github.com/samber/lo"
	"github.com/vishvananda/netlink"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/net_utils"
)

// HostSource is the LinkSource of the running kernel. Links come from
// netlink and bus addresses from the ethtool driver info.
type HostSource struct {
	handle    *netlink.Handle
	ethHandle *ethtool.Ethtool
}

// NewHostSource lists links through handle and opens the ethtool socket in
// the namespace at netnsPath, which must be the one handle was opened in.
// An empty netnsPath means the current namespace.
func NewHostSource(handle *netlink.Handle, netnsPath string) (*HostSource, error) {
	var ethHandle *ethtool.Ethtool
	err := net_utils.InNetns(netnsPath, func() error {
		var err error
		ethHandle, err = ethtool.NewEthtool()
		return err
	})
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to open ethtool socket")
	}
	return &HostSource{handle: handle, ethHandle: ethHandle}, nil
}

// Links lists the non-loopback links.
func (h *HostSource) Links() ([]Link, error) {
	links, err := h.handle.LinkList()
	if err != nil {
		return nil, err
	}
	links = lo.Filter(links, func(l netlink.Link, _ int) bool {
		return l.Attrs().HardwareAddr != nil && l.Type() == "device"
	})
	return lo.Map(links, func(l netlink.Link, _ int) Link {
		return Link{
			Name:  l.Attrs().Name,
			MAC:   l.Attrs().HardwareAddr.String(),
			State: l.Attrs().OperState.String(),
		}
	}), nil
}

// BusInfo returns the bus address ethtool reports for name.
func (h *HostSource) BusInfo(name string) (string, error) {
	return h.ethHandle.BusInfo(name)
}

// Close releases the ethtool socket.
func (h *HostSource) Close() {
	h.ethHandle.Close()
}
