package charm

import (
	"context"
	"os/exec"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// RestartNonceKey is the relation setting principals watch to restart their
// agents.
const RestartNonceKey = "restart-nonce"

// CommandRunner runs a hook tool.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the tool from PATH.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return common.NewExternalCallFailure(err, "%s %v: %s", name, args, out)
	}
	return nil
}

// RelationRestarter publishes a fresh restart nonce on every neutron-plugin
// relation.
type RelationRestarter struct {
	RelationIDs []string
	Run         CommandRunner
	Log         logr.Logger
}

// RemoteRestart sets restart-nonce to a new uuid on each relation.
func (r *RelationRestarter) RemoteRestart(ctx context.Context) error {
	nonce := uuid.New().String()
	for _, rid := range r.RelationIDs {
		r.Log.Info("requesting remote restart", "relation", rid, "nonce", nonce)
		if err := r.Run(ctx, "relation-set", "-r", rid, RestartNonceKey+"="+nonce); err != nil {
			return err
		}
	}
	return nil
}
