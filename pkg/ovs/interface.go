package ovs

const OvsInterfaceTable = "Interface"

type Interface struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Type        string            `ovsdb:"type"` // "", "internal", "dpdk", "system"
	Options     map[string]string `ovsdb:"options"`
	MTURequest  *int              `ovsdb:"mtu_request"`
	MACInUse    *string           `ovsdb:"mac_in_use"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}
