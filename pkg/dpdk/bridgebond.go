package dpdk

// Port is a DPDK port of a bond.
type Port struct {
	Name       string
	PCIAddress string
}

// Bond is a bond and its ports in insertion order.
type Bond struct {
	Name  string
	Ports []Port
}

// BridgeBonds is a bridge and its bonds in insertion order.
type BridgeBonds struct {
	Bridge string
	Bonds  []Bond
}

// BridgeBondMap groups DPDK ports by bridge and bond. It is built from
// scratch on every pass and has no removal.
type BridgeBondMap struct {
	bridges []BridgeBonds
}

// AddPort records portName with pciAddress under bridge and bond, creating
// the bridge and bond entries on first use. Adding a port name twice
// replaces its address.
func (m *BridgeBondMap) AddPort(bridge, bond, portName, pciAddress string) {
	b := m.bridge(bridge)
	bd := b.bond(bond)
	for i := range bd.Ports {
		if bd.Ports[i].Name == portName {
			bd.Ports[i].PCIAddress = pciAddress
			return
		}
	}
	bd.Ports = append(bd.Ports, Port{Name: portName, PCIAddress: pciAddress})
}

// Items returns the bridges in insertion order.
func (m *BridgeBondMap) Items() []BridgeBonds {
	return m.bridges
}

func (m *BridgeBondMap) bridge(name string) *BridgeBonds {
	for i := range m.bridges {
		if m.bridges[i].Bridge == name {
			return &m.bridges[i]
		}
	}
	m.bridges = append(m.bridges, BridgeBonds{Bridge: name})
	return &m.bridges[len(m.bridges)-1]
}

func (b *BridgeBonds) bond(name string) *Bond {
	for i := range b.Bonds {
		if b.Bonds[i].Name == name {
			return &b.Bonds[i]
		}
	}
	b.Bonds = append(b.Bonds, Bond{Name: name})
	return &b.Bonds[len(b.Bonds)-1]
}
