package ovs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/ovn-kubernetes/libovsdb/ovsdb"
	"github.com/vishvananda/netlink"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// DefaultEndpoint is the local ovsdb-server socket.
const DefaultEndpoint = "unix:/var/run/openvswitch/db.sock"

// DefaultConnectTimeout bounds how long a call waits for ovsdb-server to
// accept connections, e.g. right after openvswitch-switch was (re)started.
const DefaultConnectTimeout = 30 * time.Second

// LinkHandle is the part of *netlink.Handle used for kernel side links.
type LinkHandle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetMaster(link, master netlink.Link) error
	SetPromiscOn(link netlink.Link) error
}

type Client struct {
	ovsClient client.Client
	handle    LinkHandle
	log       logr.Logger
	endpoint  string

	// ConnectTimeout is the longest connect or WaitConnected retries for.
	ConnectTimeout time.Duration

	mu         sync.Mutex
	monitoring bool
}

// CreateOVSclient prepares a client for the Open_vSwitch database at
// endpoint. Nothing is dialled here: the first call that needs the database
// connects and starts monitoring it, so the client can be built while
// ovsdb-server is still down. Dropped connections are re-established in the
// background. handle is used for kernel side link changes.
func CreateOVSclient(endpoint string, handle LinkHandle, log logr.Logger) (*Client, error) {
	log = log.WithName("ovs")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	dbModel, err := newClientDBModel()
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to create DB model")
	}

	ovsClient, err := client.NewOVSDBClient(
		dbModel,
		client.WithEndpoint(endpoint),
		client.WithReconnect(5*time.Second, backoff.NewExponentialBackOff()),
		client.WithLogger(&log),
	)
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to create OVS client")
	}
	return &Client{
		ovsClient:      ovsClient,
		handle:         handle,
		log:            log,
		endpoint:       endpoint,
		ConnectTimeout: DefaultConnectTimeout,
	}, nil
}

func newClientDBModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel("Open_vSwitch", map[string]model.Model{
		OvsOpenVSwitchTable: &OpenvSwitch{},
		OvsBridgeTable:      &Bridge{},
		OvsPortTable:        &Port{},
		OvsInterfaceTable:   &Interface{},
		OvsIPFIXTable:       &IPFIX{},
	})
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(c.ConnectTimeout)), ctx)
}

// connect dials ovsdb-server and sets up the monitor on first use.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitoring {
		return nil
	}
	err := backoff.Retry(func() error {
		return c.ovsClient.Connect(ctx)
	}, c.newBackOff(ctx))
	if err != nil {
		return common.NewExternalCallFailure(err, "failed to connect to OVSDB at %s", c.endpoint)
	}
	if _, err := c.ovsClient.MonitorAll(ctx); err != nil {
		return common.NewExternalCallFailure(err, "failed to monitor OVSDB")
	}
	c.log.V(1).Info("connected to OVSDB", "endpoint", c.endpoint)
	c.monitoring = true
	return nil
}

// WaitConnected blocks until ovsdb-server answers an echo on a connection
// whose monitor is in place. Call it after restarting openvswitch-switch.
func (c *Client) WaitConnected(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	err := backoff.Retry(func() error {
		if !c.ovsClient.Connected() {
			return client.ErrNotConnected
		}
		return c.ovsClient.Echo(ctx)
	}, c.newBackOff(ctx))
	if err != nil {
		return common.NewExternalCallFailure(err, "OVSDB at %s did not come back", c.endpoint)
	}
	return nil
}

// Close drops the connection for good.
func (c *Client) Close() {
	c.ovsClient.Close()
}

// transact sends ops in a single transaction. Any per-operation error fails
// the whole call.
func (c *Client) transact(ctx context.Context, step string, ops ...ovsdb.Operation) ([]ovsdb.OperationResult, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	reply, err := c.ovsClient.Transact(ctx, ops...)
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "%s: transaction failed", step)
	}
	for i, r := range reply {
		if r.Error != "" {
			return nil, common.NewExternalCallFailure(
				fmt.Errorf("operation %d: %s (%s)", i, r.Error, r.Details), "%s", step)
		}
	}
	return reply, nil
}

// lookupUUID returns the _uuid of the row of table called name, or "" when
// there is none. It queries the server rather than the cache so rows written
// earlier in the same pass are seen.
func (c *Client) lookupUUID(ctx context.Context, table, name string) (string, error) {
	reply, err := c.transact(ctx, fmt.Sprintf("lookup %s %s", table, name), selectByName(table, name))
	if err != nil {
		return "", err
	}
	if len(reply) == 0 || len(reply[0].Rows) == 0 {
		return "", nil
	}
	return rowUUID(reply[0].Rows[0]), nil
}

// bridgeHasPort reports whether bridge references the port row portUUID.
func (c *Client) bridgeHasPort(ctx context.Context, bridge, portUUID string) (bool, error) {
	op := ovsdb.Operation{
		Op:    ovsdb.OperationSelect,
		Table: OvsBridgeTable,
		Where: []ovsdb.Condition{
			{Column: "name", Function: ovsdb.ConditionEqual, Value: bridge},
			{Column: "ports", Function: ovsdb.ConditionIncludes, Value: ovsdb.OvsSet{GoSet: []interface{}{ovsdb.UUID{GoUUID: portUUID}}}},
		},
		Columns: []string{"_uuid"},
	}
	reply, err := c.transact(ctx, fmt.Sprintf("check port membership of %s", bridge), op)
	if err != nil {
		return false, err
	}
	return len(reply) > 0 && len(reply[0].Rows) > 0, nil
}

// root returns the Open_vSwitch root row from the monitor cache.
func (c *Client) root(ctx context.Context) (*OpenvSwitch, error) {
	if err := c.WaitConnected(ctx); err != nil {
		return nil, err
	}
	var rows []OpenvSwitch
	if err := c.ovsClient.List(ctx, &rows); err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to list Open_vSwitch table")
	}
	if len(rows) == 0 {
		return nil, common.NewExternalCallFailure(fmt.Errorf("empty table"), "no Open_vSwitch root row")
	}
	return &rows[0], nil
}

func selectByName(table, name string) ovsdb.Operation {
	return ovsdb.Operation{
		Op:      ovsdb.OperationSelect,
		Table:   table,
		Where:   []ovsdb.Condition{{Column: "name", Function: ovsdb.ConditionEqual, Value: name}},
		Columns: []string{"_uuid"},
	}
}

func rowUUID(row ovsdb.Row) string {
	switch v := row["_uuid"].(type) {
	case ovsdb.UUID:
		return v.GoUUID
	case string:
		return v
	}
	return ""
}

// namedUUID returns a fresh uuid-name usable to reference a row inserted in
// the same transaction.
func namedUUID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
