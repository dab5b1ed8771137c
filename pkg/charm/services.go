package charm

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/go-logr/logr"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// SystemdServices manages host services through the systemd D-Bus API.
type SystemdServices struct {
	conn *dbus.Conn
	log  logr.Logger
}

// NewSystemdServices connects to the system bus.
func NewSystemdServices(ctx context.Context, log logr.Logger) (*SystemdServices, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to connect to systemd")
	}
	return &SystemdServices{conn: conn, log: log.WithName("services")}, nil
}

func (s *SystemdServices) Close() {
	s.conn.Close()
}

func unitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}

// IsRunning reports whether the unit is active.
func (s *SystemdServices) IsRunning(ctx context.Context, service string) (bool, error) {
	prop, err := s.conn.GetUnitPropertyContext(ctx, unitName(service), "ActiveState")
	if err != nil {
		return false, common.NewExternalCallFailure(err, "failed to query %s", service)
	}
	state, _ := prop.Value.Value().(string)
	return state == "active", nil
}

// Start starts the unit and waits for the job to finish.
func (s *SystemdServices) Start(ctx context.Context, service string) error {
	s.log.Info("starting service", "service", service)
	return s.wait(ctx, "start", service, func(ch chan<- string) (int, error) {
		return s.conn.StartUnitContext(ctx, unitName(service), "replace", ch)
	})
}

// Restart restarts the unit and waits for the job to finish.
func (s *SystemdServices) Restart(ctx context.Context, service string) error {
	s.log.Info("restarting service", "service", service)
	return s.wait(ctx, "restart", service, func(ch chan<- string) (int, error) {
		return s.conn.RestartUnitContext(ctx, unitName(service), "replace", ch)
	})
}

func (s *SystemdServices) wait(ctx context.Context, op, service string, submit func(chan<- string) (int, error)) error {
	ch := make(chan string, 1)
	if _, err := submit(ch); err != nil {
		return common.NewExternalCallFailure(err, "failed to %s %s", op, service)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return common.NewExternalCallFailure(nil, "%s %s finished with %s", op, service, result)
		}
		return nil
	case <-ctx.Done():
		return common.NewExternalCallFailure(ctx.Err(), "%s %s", op, service)
	}
}

// IsSystemd reports whether the host booted with systemd.
func (s *SystemdServices) IsSystemd() bool {
	return util.IsRunningSystemd()
}
