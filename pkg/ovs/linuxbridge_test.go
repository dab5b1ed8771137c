package ovs

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

type fakeLinks struct {
	links   map[string]netlink.Link
	added   []string
	up      map[string]bool
	master  map[string]string
	promisc map[string]bool
}

func newFakeLinks(names ...string) *fakeLinks {
	f := &fakeLinks{
		links:   map[string]netlink.Link{},
		up:      map[string]bool{},
		master:  map[string]string{},
		promisc: map[string]bool{},
	}
	for _, name := range names {
		f.links[name] = &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name}}
	}
	return f
}

func (f *fakeLinks) LinkByName(name string) (netlink.Link, error) {
	if link, ok := f.links[name]; ok {
		return link, nil
	}
	return nil, netlink.LinkNotFoundError{}
}

func (f *fakeLinks) LinkAdd(link netlink.Link) error {
	veth := link.(*netlink.Veth)
	f.added = append(f.added, veth.Name)
	f.links[veth.Name] = veth
	f.links[veth.PeerName] = &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: veth.PeerName}}
	return nil
}

func (f *fakeLinks) LinkSetUp(link netlink.Link) error {
	f.up[link.Attrs().Name] = true
	return nil
}

func (f *fakeLinks) LinkSetMaster(link, master netlink.Link) error {
	f.master[link.Attrs().Name] = master.Attrs().Name
	return nil
}

func (f *fakeLinks) SetPromiscOn(link netlink.Link) error {
	f.promisc[link.Attrs().Name] = true
	return nil
}

func TestSetupVethPairCreatesPair(t *testing.T) {
	links := newFakeLinks("br-mgmt")
	c := &Client{handle: links, log: logr.Discard()}

	require.NoError(t, c.setupVethPair("veth-br-ex", "veth-br-mgmt", "br-mgmt"))
	assert.Equal(t, []string{"veth-br-mgmt"}, links.added)
	assert.Equal(t, map[string]bool{"veth-br-ex": true, "veth-br-mgmt": true}, links.up)
	assert.Equal(t, map[string]string{"veth-br-mgmt": "br-mgmt"}, links.master)
}

func TestSetupVethPairRepairsExistingPair(t *testing.T) {
	// Left behind by a run that failed after creating the pair.
	links := newFakeLinks("br-mgmt", "veth-br-ex", "veth-br-mgmt")
	c := &Client{handle: links, log: logr.Discard()}

	require.NoError(t, c.setupVethPair("veth-br-ex", "veth-br-mgmt", "br-mgmt"))
	assert.Empty(t, links.added)
	assert.Equal(t, map[string]bool{"veth-br-ex": true, "veth-br-mgmt": true}, links.up)
	assert.Equal(t, map[string]string{"veth-br-mgmt": "br-mgmt"}, links.master)

	// A second pass changes nothing but still succeeds.
	require.NoError(t, c.setupVethPair("veth-br-ex", "veth-br-mgmt", "br-mgmt"))
	assert.Empty(t, links.added)
}

func TestSetLink(t *testing.T) {
	links := newFakeLinks("eth1")
	c := &Client{handle: links, log: logr.Discard()}

	require.NoError(t, c.setLink("eth1", true, false))
	assert.True(t, links.up["eth1"])
	assert.False(t, links.promisc["eth1"])

	require.NoError(t, c.setLink("eth1", false, true))
	assert.True(t, links.promisc["eth1"])
}
