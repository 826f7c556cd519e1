package uplink

import (
	"context"
	"strings"

	"github.com/juju/errors"
)

// Failover tries its members in order and stops at the first success.
// Members reporting down are skipped.
type Failover struct {
	members []Uplink
}

// NewFailover combines sinks in priority order.
func NewFailover(members ...Uplink) *Failover {
	return &Failover{members: members}
}

// Name implements Uplink.
func (f *Failover) Name() string {
	names := make([]string, len(f.members))
	for i, m := range f.members {
		names[i] = m.Name()
	}
	return strings.Join(names, "+")
}

// IsUp reports whether any member is up.
func (f *Failover) IsUp() bool {
	for _, m := range f.members {
		if m.IsUp() {
			return true
		}
	}
	return false
}

// Forward implements Uplink. Members that report down are skipped, unless
// every member does, in which case each is tried in order.
func (f *Failover) Forward(ctx context.Context, msg Message) error {
	members := make([]Uplink, 0, len(f.members))
	for _, m := range f.members {
		if m.IsUp() {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		members = f.members
	}

	var errs []string
	for _, m := range members {
		err := m.Forward(ctx, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, m.Name()+": "+err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return errors.Annotate(ErrUnavailable, "no sink up")
	}
	return errors.Annotate(ErrUnavailable, strings.Join(errs, "; "))
}

// Close closes every member.
func (f *Failover) Close() error {
	var errs []string
	for _, m := range f.members {
		if err := m.Close(); err != nil {
			errs = append(errs, m.Name()+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close uplinks: %s", strings.Join(errs, "; "))
	}
	return nil
}
