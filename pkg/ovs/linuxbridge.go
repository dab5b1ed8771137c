package ovs

import (
	"context"
	"errors"

	"github.com/vishvananda/netlink"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// VethNames returns the veth pair names joining OVS bridge to Linux bridge
// linuxBridge. Both fit the 15 character kernel limit.
func VethNames(bridge, linuxBridge string) (ovsSide, linuxSide string) {
	return "veth-" + lastN(bridge, 10), "veth-" + lastN(linuxBridge, 10)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// AddLinuxBridgePort connects Linux bridge linuxBridge to OVS bridge with a
// veth pair. Nothing is done when linuxBridge is already an OVS port.
func (c *Client) AddLinuxBridgePort(ctx context.Context, bridge, linuxBridge string, iface InterfaceData, port PortData) error {
	existing, err := c.lookupUUID(ctx, OvsPortTable, linuxBridge)
	if err != nil {
		return err
	}
	if existing != "" {
		c.log.Info("Linux bridge is already directly in use by OVS", "linuxbridge", linuxBridge)
		return nil
	}

	ovsSide, linuxSide := VethNames(bridge, linuxBridge)
	if err := c.setupVethPair(ovsSide, linuxSide, linuxBridge); err != nil {
		return err
	}
	c.log.Info("adding Linux bridge to OVS bridge", "linuxbridge", linuxBridge, "bridge", bridge)
	return c.AddBridgePort(ctx, bridge, ovsSide, PortOptions{Interface: iface, Port: port})
}

// setupVethPair creates the veth pair when linuxSide is missing. Both ends
// are then brought up and linuxSide enslaved to linuxBridge every time, so a
// pair left half configured by an earlier run is repaired.
func (c *Client) setupVethPair(ovsSide, linuxSide, linuxBridge string) error {
	if _, err := c.handle.LinkByName(linuxSide); err == nil {
		c.log.V(1).Info("veth already exists", "interface", linuxSide)
	} else if !isLinkNotFound(err) {
		return common.NewExternalCallFailure(err, "failed to look up %s", linuxSide)
	} else {
		veth := &netlink.Veth{
			LinkAttrs: netlink.LinkAttrs{Name: linuxSide},
			PeerName:  ovsSide,
		}
		if err := c.handle.LinkAdd(veth); err != nil {
			return common.NewExternalCallFailure(err, "failed to add veth %s", linuxSide)
		}
	}

	master, err := c.handle.LinkByName(linuxBridge)
	if err != nil {
		return common.NewExternalCallFailure(err, "failed to look up Linux bridge %s", linuxBridge)
	}
	for _, name := range []string{ovsSide, linuxSide} {
		link, err := c.handle.LinkByName(name)
		if err != nil {
			return common.NewExternalCallFailure(err, "failed to look up veth %s", name)
		}
		if err := c.handle.LinkSetUp(link); err != nil {
			return common.NewExternalCallFailure(err, "failed to set %s up", name)
		}
		if name == linuxSide {
			if err := c.handle.LinkSetMaster(link, master); err != nil {
				return common.NewExternalCallFailure(err, "failed to enslave %s to %s", name, linuxBridge)
			}
		}
	}
	return nil
}

// setLink brings the kernel link port up and turns on promiscuous mode as
// requested.
func (c *Client) setLink(port string, up, promisc bool) error {
	link, err := c.handle.LinkByName(port)
	if err != nil {
		return common.NewExternalCallFailure(err, "failed to look up link %s", port)
	}
	if up {
		if err := c.handle.LinkSetUp(link); err != nil {
			return common.NewExternalCallFailure(err, "failed to set %s up", port)
		}
	}
	if promisc {
		if err := c.handle.SetPromiscOn(link); err != nil {
			return common.NewExternalCallFailure(err, "failed to set %s promiscuous", port)
		}
	}
	return nil
}

func isLinkNotFound(err error) bool {
	var notFound netlink.LinkNotFoundError
	return errors.As(err, &notFound)
}
