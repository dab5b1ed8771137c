package ovs

import (
	"context"
	"fmt"
	"sort"

	"github.com/ovn-kubernetes/libovsdb/ovsdb"
	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// InterfaceData is the Interface row content requested for a port.
type InterfaceData struct {
	Type string
	// MTURequest of 0 leaves mtu_request untouched.
	MTURequest  int
	Options     map[string]string
	ExternalIDs map[string]string
}

// PortData is the Port row content requested for a port or bond.
type PortData struct {
	BondMode    string
	LACP        string
	OtherConfig map[string]string
	ExternalIDs map[string]string
}

// PortOptions describes a single interface port.
type PortOptions struct {
	Interface InterfaceData
	Port      PortData
	// LinkUp and Promisc act on the kernel link of the same name.
	LinkUp  bool
	Promisc bool
}

// BondInterface is one member of a bond.
type BondInterface struct {
	Name      string
	Interface InterfaceData
}

// AddBridge creates bridge name if it does not exist and sets its datapath
// type and external ids either way.
func (c *Client) AddBridge(ctx context.Context, name, datapathType string, externalIDs map[string]string) error {
	existing, err := c.lookupUUID(ctx, OvsBridgeTable, name)
	if err != nil {
		return err
	}
	var ops []ovsdb.Operation
	if existing != "" {
		ops = updateBridgeOps(name, datapathType, externalIDs)
	} else {
		root, err := c.root(ctx)
		if err != nil {
			return err
		}
		ops = createBridgeOps(name, datapathType, externalIDs, root.UUID)
		c.log.Info("adding bridge", "bridge", name, "datapath", datapathType)
	}
	_, err = c.transact(ctx, fmt.Sprintf("add bridge %s", name), ops...)
	return err
}

// AddBridgePort attaches port to bridge if it is not attached yet and applies
// the requested interface and port data. A port attached to another bridge
// is an error.
func (c *Client) AddBridgePort(ctx context.Context, bridge, port string, opts PortOptions) error {
	step := fmt.Sprintf("add port %s to bridge %s", port, bridge)
	existing, err := c.lookupUUID(ctx, OvsPortTable, port)
	if err != nil {
		return err
	}

	var ops []ovsdb.Operation
	if existing != "" {
		member, err := c.bridgeHasPort(ctx, bridge, existing)
		if err != nil {
			return err
		}
		if !member {
			return common.NewExternalCallFailure(fmt.Errorf("port exists on another bridge"), "%s", step)
		}
		ops = append(updateInterfaceOps(port, opts.Interface), updatePortOps(port, opts.Port)...)
	} else {
		c.log.Info("adding port", "bridge", bridge, "port", port, "type", opts.Interface.Type)
		ops = createPortOps(bridge, port, opts.Port, []BondInterface{{Name: port, Interface: opts.Interface}})
	}
	if _, err := c.transact(ctx, step, ops...); err != nil {
		return err
	}

	if opts.LinkUp || opts.Promisc {
		if err := c.setLink(port, opts.LinkUp, opts.Promisc); err != nil {
			return err
		}
	}
	return nil
}

// AddBridgeBond creates bond on bridge over interfaces, or updates its data
// when it exists. Interfaces missing from an existing bond are added to it.
func (c *Client) AddBridgeBond(ctx context.Context, bridge, bond string, portData PortData, interfaces []BondInterface) error {
	step := fmt.Sprintf("add bond %s to bridge %s", bond, bridge)
	if len(interfaces) == 0 {
		return common.NewExternalCallFailure(fmt.Errorf("no interfaces"), "%s", step)
	}
	existing, err := c.lookupUUID(ctx, OvsPortTable, bond)
	if err != nil {
		return err
	}

	var ops []ovsdb.Operation
	if existing == "" {
		c.log.Info("adding bond", "bridge", bridge, "bond", bond,
			"interfaces", lo.Map(interfaces, func(i BondInterface, _ int) string { return i.Name }))
		ops = createPortOps(bridge, bond, portData, interfaces)
	} else {
		member, err := c.bridgeHasPort(ctx, bridge, existing)
		if err != nil {
			return err
		}
		if !member {
			return common.NewExternalCallFailure(fmt.Errorf("bond exists on another bridge"), "%s", step)
		}
		var missing []BondInterface
		for _, iface := range interfaces {
			uuid, err := c.lookupUUID(ctx, OvsInterfaceTable, iface.Name)
			if err != nil {
				return err
			}
			if uuid == "" {
				missing = append(missing, iface)
				continue
			}
			ops = append(ops, updateInterfaceOps(iface.Name, iface.Interface)...)
		}
		ops = append(ops, extendBondOps(bond, missing)...)
		ops = append(ops, updatePortOps(bond, portData)...)
	}
	_, err = c.transact(ctx, step, ops...)
	return err
}

// EnableIPFIX points the IPFIX export of bridge at target.
func (c *Client) EnableIPFIX(ctx context.Context, bridge, target string) error {
	_, err := c.transact(ctx, fmt.Sprintf("enable IPFIX on %s", bridge), enableIPFIXOps(bridge, target)...)
	return err
}

// DisableIPFIX clears the IPFIX export of bridge. Clearing an unset value is
// a no-op.
func (c *Client) DisableIPFIX(ctx context.Context, bridge string) error {
	_, err := c.transact(ctx, fmt.Sprintf("disable IPFIX on %s", bridge), disableIPFIXOps(bridge))
	return err
}

// KeyValue is an ordered map entry.
type KeyValue struct {
	Key   string
	Value string
}

// SetOtherConfig sets the given keys of Open_vSwitch other_config and
// reports whether any value changed.
func (c *Client) SetOtherConfig(ctx context.Context, values []KeyValue) (bool, error) {
	root, err := c.root(ctx)
	if err != nil {
		return false, err
	}
	changed := lo.Filter(values, func(kv KeyValue, _ int) bool {
		current, ok := root.OtherConfig[kv.Key]
		return !ok || current != kv.Value
	})
	if len(changed) == 0 {
		return false, nil
	}
	for _, kv := range changed {
		c.log.Info("setting Open_vSwitch other_config", "key", kv.Key, "value", kv.Value)
	}
	m := lo.SliceToMap(changed, func(kv KeyValue) (string, string) { return kv.Key, kv.Value })
	op := ovsdb.Operation{
		Op:        ovsdb.OperationMutate,
		Table:     OvsOpenVSwitchTable,
		Where:     []ovsdb.Condition{{Column: "_uuid", Function: ovsdb.ConditionEqual, Value: ovsdb.UUID{GoUUID: root.UUID}}},
		Mutations: upsertMutations("other_config", m),
	}
	if _, err := c.transact(ctx, "set Open_vSwitch other_config", op); err != nil {
		return false, err
	}
	return true, nil
}

func createBridgeOps(name, datapathType string, externalIDs map[string]string, rootUUID string) []ovsdb.Operation {
	ifaceName := namedUUID("iface")
	portName := namedUUID("port")
	bridgeName := namedUUID("bridge")
	return []ovsdb.Operation{
		{
			Op:       ovsdb.OperationInsert,
			Table:    OvsInterfaceTable,
			UUIDName: ifaceName,
			Row:      ovsdb.Row{"name": name, "type": "internal"},
		},
		{
			Op:       ovsdb.OperationInsert,
			Table:    OvsPortTable,
			UUIDName: portName,
			Row: ovsdb.Row{
				"name":       name,
				"interfaces": ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: ifaceName}}},
			},
		},
		{
			Op:       ovsdb.OperationInsert,
			Table:    OvsBridgeTable,
			UUIDName: bridgeName,
			Row: ovsdb.Row{
				"name":          name,
				"datapath_type": datapathType,
				"ports":         ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: portName}}},
				"external_ids":  ovsMap(externalIDs),
			},
		},
		{
			Op:    ovsdb.OperationMutate,
			Table: OvsOpenVSwitchTable,
			Where: []ovsdb.Condition{{Column: "_uuid", Function: ovsdb.ConditionEqual, Value: ovsdb.UUID{GoUUID: rootUUID}}},
			Mutations: []ovsdb.Mutation{{
				Column:  "bridges",
				Mutator: ovsdb.MutateOperationInsert,
				Value:   ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: bridgeName}}},
			}},
		},
	}
}

func updateBridgeOps(name, datapathType string, externalIDs map[string]string) []ovsdb.Operation {
	ops := []ovsdb.Operation{{
		Op:    ovsdb.OperationUpdate,
		Table: OvsBridgeTable,
		Where: whereName(name),
		Row:   ovsdb.Row{"datapath_type": datapathType},
	}}
	if len(externalIDs) > 0 {
		ops = append(ops, ovsdb.Operation{
			Op:        ovsdb.OperationMutate,
			Table:     OvsBridgeTable,
			Where:     whereName(name),
			Mutations: upsertMutations("external_ids", externalIDs),
		})
	}
	return ops
}

// createPortOps inserts a port with one row per interface and adds it to
// bridge. A single interface with the port's name is a plain port.
func createPortOps(bridge, port string, portData PortData, interfaces []BondInterface) []ovsdb.Operation {
	var ops []ovsdb.Operation
	var refs []interface{}
	for _, iface := range interfaces {
		ref := namedUUID("iface")
		refs = append(refs, ovsdb.UUID{GoUUID: ref})
		ops = append(ops, ovsdb.Operation{
			Op:       ovsdb.OperationInsert,
			Table:    OvsInterfaceTable,
			UUIDName: ref,
			Row:      interfaceRow(iface.Name, iface.Interface),
		})
	}

	portRef := namedUUID("port")
	row := portRow(portData)
	row["name"] = port
	row["interfaces"] = ovsdb.OvsSet{GoSet: refs}
	ops = append(ops,
		ovsdb.Operation{
			Op:       ovsdb.OperationInsert,
			Table:    OvsPortTable,
			UUIDName: portRef,
			Row:      row,
		},
		ovsdb.Operation{
			Op:    ovsdb.OperationMutate,
			Table: OvsBridgeTable,
			Where: whereName(bridge),
			Mutations: []ovsdb.Mutation{{
				Column:  "ports",
				Mutator: ovsdb.MutateOperationInsert,
				Value:   ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: portRef}}},
			}},
		},
	)
	return ops
}

// extendBondOps inserts interfaces and adds them to the existing bond.
func extendBondOps(bond string, interfaces []BondInterface) []ovsdb.Operation {
	if len(interfaces) == 0 {
		return nil
	}
	var ops []ovsdb.Operation
	var refs []interface{}
	for _, iface := range interfaces {
		ref := namedUUID("iface")
		refs = append(refs, ovsdb.UUID{GoUUID: ref})
		ops = append(ops, ovsdb.Operation{
			Op:       ovsdb.OperationInsert,
			Table:    OvsInterfaceTable,
			UUIDName: ref,
			Row:      interfaceRow(iface.Name, iface.Interface),
		})
	}
	return append(ops, ovsdb.Operation{
		Op:    ovsdb.OperationMutate,
		Table: OvsPortTable,
		Where: whereName(bond),
		Mutations: []ovsdb.Mutation{{
			Column:  "interfaces",
			Mutator: ovsdb.MutateOperationInsert,
			Value:   ovsdb.OvsSet{GoSet: refs},
		}},
	})
}

func interfaceRow(name string, data InterfaceData) ovsdb.Row {
	row := ovsdb.Row{"name": name}
	if data.Type != "" {
		row["type"] = data.Type
	}
	if data.MTURequest > 0 {
		row["mtu_request"] = data.MTURequest
	}
	if len(data.Options) > 0 {
		row["options"] = ovsMap(data.Options)
	}
	if len(data.ExternalIDs) > 0 {
		row["external_ids"] = ovsMap(data.ExternalIDs)
	}
	return row
}

func portRow(data PortData) ovsdb.Row {
	row := ovsdb.Row{}
	if data.BondMode != "" {
		row["bond_mode"] = data.BondMode
	}
	if data.LACP != "" {
		row["lacp"] = data.LACP
	}
	if len(data.OtherConfig) > 0 {
		row["other_config"] = ovsMap(data.OtherConfig)
	}
	if len(data.ExternalIDs) > 0 {
		row["external_ids"] = ovsMap(data.ExternalIDs)
	}
	return row
}

func updateInterfaceOps(name string, data InterfaceData) []ovsdb.Operation {
	var ops []ovsdb.Operation
	row := ovsdb.Row{}
	if data.Type != "" {
		row["type"] = data.Type
	}
	if data.MTURequest > 0 {
		row["mtu_request"] = data.MTURequest
	}
	if len(row) > 0 {
		ops = append(ops, ovsdb.Operation{Op: ovsdb.OperationUpdate, Table: OvsInterfaceTable, Where: whereName(name), Row: row})
	}
	var mutations []ovsdb.Mutation
	mutations = append(mutations, upsertMutations("options", data.Options)...)
	mutations = append(mutations, upsertMutations("external_ids", data.ExternalIDs)...)
	if len(mutations) > 0 {
		ops = append(ops, ovsdb.Operation{Op: ovsdb.OperationMutate, Table: OvsInterfaceTable, Where: whereName(name), Mutations: mutations})
	}
	return ops
}

func updatePortOps(name string, data PortData) []ovsdb.Operation {
	var ops []ovsdb.Operation
	row := ovsdb.Row{}
	if data.BondMode != "" {
		row["bond_mode"] = data.BondMode
	}
	if data.LACP != "" {
		row["lacp"] = data.LACP
	}
	if len(row) > 0 {
		ops = append(ops, ovsdb.Operation{Op: ovsdb.OperationUpdate, Table: OvsPortTable, Where: whereName(name), Row: row})
	}
	var mutations []ovsdb.Mutation
	mutations = append(mutations, upsertMutations("other_config", data.OtherConfig)...)
	mutations = append(mutations, upsertMutations("external_ids", data.ExternalIDs)...)
	if len(mutations) > 0 {
		ops = append(ops, ovsdb.Operation{Op: ovsdb.OperationMutate, Table: OvsPortTable, Where: whereName(name), Mutations: mutations})
	}
	return ops
}

func enableIPFIXOps(bridge, target string) []ovsdb.Operation {
	ref := namedUUID("ipfix")
	return []ovsdb.Operation{
		{
			Op:       ovsdb.OperationInsert,
			Table:    OvsIPFIXTable,
			UUIDName: ref,
			Row:      ovsdb.Row{"targets": ovsdb.OvsSet{GoSet: []interface{}{target}}},
		},
		{
			Op:    ovsdb.OperationUpdate,
			Table: OvsBridgeTable,
			Where: whereName(bridge),
			Row:   ovsdb.Row{"ipfix": ovsdb.UUID{GoUUID: ref}},
		},
	}
}

func disableIPFIXOps(bridge string) ovsdb.Operation {
	return ovsdb.Operation{
		Op:    ovsdb.OperationUpdate,
		Table: OvsBridgeTable,
		Where: whereName(bridge),
		Row:   ovsdb.Row{"ipfix": ovsdb.OvsSet{GoSet: []interface{}{}}},
	}
}

// upsertMutations replaces the given keys of a map column: existing keys are
// deleted and the new pairs inserted, in one operation.
func upsertMutations(column string, m map[string]string) []ovsdb.Mutation {
	if len(m) == 0 {
		return nil
	}
	keys := lo.Keys(m)
	sort.Strings(keys)
	return []ovsdb.Mutation{
		{
			Column:  column,
			Mutator: ovsdb.MutateOperationDelete,
			Value:   ovsdb.OvsSet{GoSet: lo.ToAnySlice(keys)},
		},
		{
			Column:  column,
			Mutator: ovsdb.MutateOperationInsert,
			Value:   ovsMap(m),
		},
	}
}

func ovsMap(m map[string]string) ovsdb.OvsMap {
	goMap := make(map[interface{}]interface{}, len(m))
	for k, v := range m {
		goMap[k] = v
	}
	return ovsdb.OvsMap{GoMap: goMap}
}

func whereName(name string) []ovsdb.Condition {
	return []ovsdb.Condition{{Column: "name", Function: ovsdb.ConditionEqual, Value: name}}
}
