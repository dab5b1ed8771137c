package ovs

import (
	"testing"

	"github.com/ovn-kubernetes/libovsdb/ovsdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBridgeOps(t *testing.T) {
	ops := createBridgeOps("br-int", "netdev", map[string]string{"charm-neutron-openvswitch": "managed"}, "root-uuid")
	require.Len(t, ops, 4)

	assert.Equal(t, ovsdb.OperationInsert, ops[0].Op)
	assert.Equal(t, OvsInterfaceTable, ops[0].Table)
	assert.Equal(t, "internal", ops[0].Row["type"])

	assert.Equal(t, OvsPortTable, ops[1].Table)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: ops[0].UUIDName}}}, ops[1].Row["interfaces"])

	assert.Equal(t, OvsBridgeTable, ops[2].Table)
	assert.Equal(t, "br-int", ops[2].Row["name"])
	assert.Equal(t, "netdev", ops[2].Row["datapath_type"])
	assert.Equal(t, ovsMap(map[string]string{"charm-neutron-openvswitch": "managed"}), ops[2].Row["external_ids"])

	assert.Equal(t, ovsdb.OperationMutate, ops[3].Op)
	assert.Equal(t, OvsOpenVSwitchTable, ops[3].Table)
	assert.Equal(t, ovsdb.UUID{GoUUID: "root-uuid"}, ops[3].Where[0].Value)
	assert.Equal(t, "bridges", ops[3].Mutations[0].Column)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: ops[2].UUIDName}}}, ops[3].Mutations[0].Value)
}

func TestUpdateBridgeOps(t *testing.T) {
	ops := updateBridgeOps("br-ex", "system", map[string]string{"charm-neutron-openvswitch": "managed"})
	require.Len(t, ops, 2)
	assert.Equal(t, ovsdb.OperationUpdate, ops[0].Op)
	assert.Equal(t, ovsdb.Row{"datapath_type": "system"}, ops[0].Row)
	assert.Equal(t, whereName("br-ex"), ops[0].Where)

	require.Len(t, ops[1].Mutations, 2)
	assert.Equal(t, ovsdb.MutateOperationDelete, ops[1].Mutations[0].Mutator)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{"charm-neutron-openvswitch"}}, ops[1].Mutations[0].Value)
	assert.Equal(t, ovsdb.MutateOperationInsert, ops[1].Mutations[1].Mutator)
}

func TestCreatePortOpsDPDK(t *testing.T) {
	iface := InterfaceData{
		Type:        "dpdk",
		MTURequest:  9000,
		Options:     map[string]string{"dpdk-devargs": "0000:00:1c.0"},
		ExternalIDs: map[string]string{"charm-neutron-openvswitch": "br-a"},
	}
	ops := createPortOps("br-a", "dpdk-2ef4b5c", PortData{}, []BondInterface{{Name: "dpdk-2ef4b5c", Interface: iface}})
	require.Len(t, ops, 3)

	assert.Equal(t, ovsdb.Row{
		"name":         "dpdk-2ef4b5c",
		"type":         "dpdk",
		"mtu_request":  9000,
		"options":      ovsMap(map[string]string{"dpdk-devargs": "0000:00:1c.0"}),
		"external_ids": ovsMap(map[string]string{"charm-neutron-openvswitch": "br-a"}),
	}, ops[0].Row)

	assert.Equal(t, "dpdk-2ef4b5c", ops[1].Row["name"])
	assert.Equal(t, whereName("br-a"), ops[2].Where)
	assert.Equal(t, "ports", ops[2].Mutations[0].Column)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: ops[1].UUIDName}}}, ops[2].Mutations[0].Value)
}

func TestCreatePortOpsBond(t *testing.T) {
	portData := PortData{
		BondMode:    "balance-slb",
		LACP:        "off",
		OtherConfig: map[string]string{"lacp-time": "fast"},
	}
	ops := createPortOps("br-ex", "bond1", portData, []BondInterface{
		{Name: "dpdk-aaaaaaa", Interface: InterfaceData{Type: "dpdk"}},
		{Name: "dpdk-bbbbbbb", Interface: InterfaceData{Type: "dpdk"}},
	})
	require.Len(t, ops, 4)
	port := ops[2]
	assert.Equal(t, "bond1", port.Row["name"])
	assert.Equal(t, "balance-slb", port.Row["bond_mode"])
	assert.Equal(t, "off", port.Row["lacp"])
	assert.Equal(t, ovsMap(map[string]string{"lacp-time": "fast"}), port.Row["other_config"])
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{
		ovsdb.UUID{GoUUID: ops[0].UUIDName},
		ovsdb.UUID{GoUUID: ops[1].UUIDName},
	}}, port.Row["interfaces"])
}

func TestUpdateOpsSkipEmptyData(t *testing.T) {
	assert.Empty(t, updateInterfaceOps("eth1", InterfaceData{}))
	assert.Empty(t, updatePortOps("eth1", PortData{}))
	assert.Empty(t, extendBondOps("bond0", nil))

	ops := updateInterfaceOps("dpdk0", InterfaceData{Type: "dpdk", MTURequest: 1500})
	require.Len(t, ops, 1)
	assert.Equal(t, ovsdb.Row{"type": "dpdk", "mtu_request": 1500}, ops[0].Row)
}

func TestIPFIXOps(t *testing.T) {
	ops := enableIPFIXOps("br-int", "10.0.0.1:4739")
	require.Len(t, ops, 2)
	assert.Equal(t, OvsIPFIXTable, ops[0].Table)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{"10.0.0.1:4739"}}, ops[0].Row["targets"])
	assert.Equal(t, ovsdb.UUID{GoUUID: ops[0].UUIDName}, ops[1].Row["ipfix"])

	op := disableIPFIXOps("br-int")
	assert.Equal(t, ovsdb.OperationUpdate, op.Op)
	assert.Equal(t, ovsdb.OvsSet{GoSet: []interface{}{}}, op.Row["ipfix"])
}

func TestNamedUUIDIsValidIdentifier(t *testing.T) {
	name := namedUUID("port")
	assert.Regexp(t, `^port_[0-9a-f]{32}$`, name)
	assert.NotEqual(t, name, namedUUID("port"))
}

func TestVethNames(t *testing.T) {
	ovsSide, linuxSide := VethNames("br-data", "br-provider-mgmt")
	assert.Equal(t, "veth-br-data", ovsSide)
	assert.Equal(t, "veth-vider-mgmt", linuxSide)
	assert.LessOrEqual(t, len(linuxSide), 15)
}

func TestVersionGates(t *testing.T) {
	tests := []struct {
		version  string
		lateInit bool
		vhost    bool
	}{
		{"2.5.0", false, false},
		{"2.6.1", true, false},
		{"2.9.0", true, true},
		{"2.13.8-0ubuntu1", true, true},
		{"3.1", true, true},
		{"garbage", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.lateInit, HasLateDPDKInit(tt.version), tt.version)
		assert.Equal(t, tt.vhost, VhostUserClient(tt.version), tt.version)
	}
}
