package net_utils

// NetworkInterface is a kernel network link as the port resolver sees it.
type NetworkInterface struct {
	Name string
	// MAC is lower case colon hex.
	MAC string
	// Type is the netlink link type: device, bridge, bond, openvswitch, veth.
	Type string
	// HasAddress is set when a global IPv4 or IPv6 address is configured.
	HasAddress   bool
	BridgeMember bool
	BondMaster   string
}

// IsPhysical reports whether the link is backed by a device rather than
// being a virtual link.
func (n NetworkInterface) IsPhysical() bool {
	return n.Type == "device"
}

// IsLinuxBridge reports whether the link is itself a Linux bridge.
func (n NetworkInterface) IsLinuxBridge() bool {
	return n.Type == "bridge"
}
