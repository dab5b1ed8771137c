package dpdk

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
)

// PortName names the DPDK port of pciAddress. With late init the name is a
// hash of the address; before that ports are numbered by their position in
// PCI address order.
func PortName(pciAddress string, index int, lateInit bool) string {
	if lateInit {
		return HashedPortName(pciAddress)
	}
	return fmt.Sprintf("dpdk%d", index)
}

// HashedPortName returns dpdk- followed by the first 7 hex digits of the
// SHA-1 of pciAddress.
func HashedPortName(pciAddress string) string {
	sum := sha1.Sum([]byte(pciAddress))
	return "dpdk-" + hex.EncodeToString(sum[:])[:7]
}

// PortInterfaceData returns the interface data of a DPDK port. The device
// is only named through dpdk-devargs when OVS supports late init.
func PortInterfaceData(pciAddress string, mtu int, lateInit bool, externalIDs map[string]string) ovs.InterfaceData {
	data := ovs.InterfaceData{
		Type:        "dpdk",
		MTURequest:  mtu,
		ExternalIDs: externalIDs,
	}
	if lateInit {
		data.Options = map[string]string{"dpdk-devargs": pciAddress}
	}
	return data
}

// BondPortData returns the port data of a DPDK bond with policy.
func BondPortData(policy BondPolicy, externalIDs map[string]string) ovs.PortData {
	return ovs.PortData{
		BondMode:    policy.Mode,
		LACP:        policy.LACP,
		OtherConfig: map[string]string{"lacp-time": policy.LACPTime},
		ExternalIDs: externalIDs,
	}
}

// BondInterfaces returns the members of a DPDK bond with their interface
// data. Bonds only exist with late init so devargs are always set.
func BondInterfaces(ports []Port, mtu int, externalIDs map[string]string) []ovs.BondInterface {
	return lo.Map(ports, func(p Port, _ int) ovs.BondInterface {
		return ovs.BondInterface{
			Name:      p.Name,
			Interface: PortInterfaceData(p.PCIAddress, mtu, true, externalIDs),
		}
	})
}
