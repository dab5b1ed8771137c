package dpdk

import (
	"strings"

	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

// AllBonds keys the policy applied to bonds without their own entry.
const AllBonds = "ALL_BONDS"

var (
	BondModes    = []string{"active-backup", "balance-slb", "balance-tcp"}
	BondLACP     = []string{"active", "passive", "off"}
	BondLACPTime = []string{"fast", "slow"}
)

// BondPolicy is the LACP configuration of a bond.
type BondPolicy struct {
	Mode     string
	LACP     string
	LACPTime string
}

// DefaultBondPolicy applies when dpdk-bond-config says nothing.
var DefaultBondPolicy = BondPolicy{Mode: "balance-tcp", LACP: "active", LACPTime: "fast"}

// BondsConfig is a parsed dpdk-bond-config.
type BondsConfig struct {
	policies map[string]BondPolicy
}

// ParseBondsConfig parses "bond:mode:lacp:lacp-time ..." entries. Trailing
// fields may be left out and an empty bond name sets the policy of all
// bonds.
func ParseBondsConfig(s string) (*BondsConfig, error) {
	bc := &BondsConfig{policies: map[string]BondPolicy{AllBonds: DefaultBondPolicy}}
	for _, entry := range strings.Fields(s) {
		bond, rest, _ := config.Partition(entry)
		if bond == "" {
			bond = AllBonds
		}
		mode, rest, _ := config.Partition(rest)
		lacp, rest, _ := config.Partition(rest)
		lacpTime, _, _ := config.Partition(rest)

		policy := BondPolicy{
			Mode:     lo.Ternary(mode == "", DefaultBondPolicy.Mode, mode),
			LACP:     lo.Ternary(lacp == "", DefaultBondPolicy.LACP, lacp),
			LACPTime: lo.Ternary(lacpTime == "", DefaultBondPolicy.LACPTime, lacpTime),
		}
		if !lo.Contains(BondModes, policy.Mode) {
			return nil, common.NewMalformedConfig("dpdk-bond-config", "bond mode %s is invalid", policy.Mode)
		}
		if !lo.Contains(BondLACP, policy.LACP) {
			return nil, common.NewMalformedConfig("dpdk-bond-config", "bond lacp %s is invalid", policy.LACP)
		}
		if !lo.Contains(BondLACPTime, policy.LACPTime) {
			return nil, common.NewMalformedConfig("dpdk-bond-config", "bond lacp-time %s is invalid", policy.LACPTime)
		}
		bc.policies[bond] = policy
	}
	return bc, nil
}

// GetBondConfig returns the policy of bond, falling back to the policy of
// all bonds.
func (bc *BondsConfig) GetBondConfig(bond string) BondPolicy {
	if policy, ok := bc.policies[bond]; ok {
		return policy
	}
	return bc.policies[AllBonds]
}
