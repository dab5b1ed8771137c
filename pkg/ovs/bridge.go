package ovs

const OvsBridgeTable = "Bridge"

type Bridge struct {
	UUID         string            `ovsdb:"_uuid"`
	Name         string            `ovsdb:"name"`
	DatapathType string            `ovsdb:"datapath_type"`
	Ports        []string          `ovsdb:"ports"`
	IPFIX        *string           `ovsdb:"ipfix"`
	ExternalIDs  map[string]string `ovsdb:"external_ids"`
}
