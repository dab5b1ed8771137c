package ovs

const OvsIPFIXTable = "IPFIX"

type IPFIX struct {
	UUID        string            `ovsdb:"_uuid"`
	Targets     []string          `ovsdb:"targets"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}
