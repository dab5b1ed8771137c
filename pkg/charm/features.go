package charm

import (
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

const (
	IptablesHybrid = "iptables_hybrid"
	OpenvSwitch    = "openvswitch"
)

// Features are the effective feature switches of a unit, after release and
// container gating of the raw options.
type Features struct {
	DVR             bool
	L3HA            bool
	LocalDHCP       bool
	DPDK            bool
	HardwareOffload bool
	SRIOV           bool
	Release         string
	Series          string
}

// NewFeatures derives the effective features from opts. DVR, L3HA and local
// DHCP are never enabled inside a container.
func NewFeatures(opts *config.Options) Features {
	return Features{
		DVR:             !opts.InContainer && opts.EnableDVR,
		L3HA:            !opts.InContainer && opts.EnableL3HA,
		LocalDHCP:       !opts.InContainer && opts.EnableLocalDHCP,
		DPDK:            opts.EnableDPDK && OpenStackAtLeast(opts.OpenStackRelease, "mitaka"),
		HardwareOffload: opts.EnableHardwareOffload && OpenStackAtLeast(opts.OpenStackRelease, "stein"),
		SRIOV:           opts.EnableSRIOV && SeriesAtLeast(opts.UbuntuSeries, "xenial"),
		Release:         opts.OpenStackRelease,
		Series:          opts.UbuntuSeries,
	}
}

// NovaMetadata reports whether the unit runs a metadata agent.
func (f Features) NovaMetadata() bool {
	return f.DVR || f.LocalDHCP
}

// FirewallDriver returns the security group driver for the agent. Unknown
// drivers fall back to iptables_hybrid, as does openvswitch before xenial
// where the kernel lacks conntrack support in OVS.
func FirewallDriver(driver, series string) string {
	switch driver {
	case OpenvSwitch:
		if !SeriesAtLeast(series, "xenial") {
			return IptablesHybrid
		}
		return OpenvSwitch
	default:
		return IptablesHybrid
	}
}
