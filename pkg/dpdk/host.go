package dpdk

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
)

// CPUMask returns the hex core mask selecting the first coresPerNode cores
// of every NUMA node, e.g. 0x01 or 0x30003.
func CPUMask(nodes []pci.NUMANode, coresPerNode int) string {
	mask := new(big.Int)
	for _, node := range nodes {
		for _, core := range lo.Slice(node.Cores, 0, coresPerNode) {
			mask.SetBit(mask, core, 1)
		}
	}
	digits := mask.Text(16)
	if len(digits) < 2 {
		digits = "0" + digits
	}
	return "0x" + digits
}

// SocketMemory returns the per node memory list, the same size for every
// node.
func SocketMemory(nodes []pci.NUMANode, size int) string {
	if len(nodes) == 0 {
		return strconv.Itoa(size)
	}
	return strings.Join(lo.Map(nodes, func(_ pci.NUMANode, _ int) string { return strconv.Itoa(size) }), ",")
}

// DeviceWhitelist returns the EAL whitelist arguments for addresses.
func DeviceWhitelist(addresses []string) string {
	return strings.Join(lo.Map(addresses, func(a string, _ int) string { return "-w " + a }), " ")
}

// OtherConfig returns the Open_vSwitch other_config entries enabling DPDK.
// Before vhost-user client mode OVS owns the sockets and needs their owner
// and permissions.
func OtherConfig(cpuMask, socketMemory, whitelist string, vhostUserClient bool) []ovs.KeyValue {
	extra := whitelist
	if !vhostUserClient {
		extra = strings.TrimSpace("--vhost-owner libvirt-qemu:kvm --vhost-perm 0660 " + whitelist)
	}
	return []ovs.KeyValue{
		{Key: "dpdk-lcore-mask", Value: cpuMask},
		{Key: "dpdk-socket-mem", Value: socketMemory},
		{Key: "dpdk-init", Value: "true"},
		{Key: "dpdk-extra", Value: extra},
	}
}
