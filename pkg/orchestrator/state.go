package orchestrator

import (
	"fmt"
	"time"

	"github.com/hutchd/hutch/pkg/events"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/types"
)

// validTransitions is the instance lifecycle. Failed and removed are
// terminal. Stopped instances may start again, which leaves room for
// restart and dependency ordering without widening the machine.
var validTransitions = map[types.InstanceState][]types.InstanceState{
	types.InstanceStatePlanned:  {types.InstanceStateBuilding, types.InstanceStateCreated, types.InstanceStateFailed},
	types.InstanceStateBuilding: {types.InstanceStateCreated, types.InstanceStateFailed},
	types.InstanceStateCreated:  {types.InstanceStateRunning, types.InstanceStateRemoved, types.InstanceStateFailed},
	types.InstanceStateRunning:  {types.InstanceStateStopped, types.InstanceStateFailed},
	types.InstanceStateStopped:  {types.InstanceStateRunning, types.InstanceStateRemoved},
}

func canTransition(from, to types.InstanceState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// setState advances an instance through the lifecycle, stamping times
// and publishing the matching event. Callers persist the instance
// themselves; setState only mutates the in-memory record.
func (o *Orchestrator) setState(inst *types.Instance, to types.InstanceState) error {
	if !canTransition(inst.State, to) {
		return fmt.Errorf("instance %s: invalid transition %s -> %s", inst.ID, inst.State, to)
	}
	inst.State = to

	switch to {
	case types.InstanceStateRunning:
		inst.StartedAt = time.Now()
		o.publish(events.EventInstanceStarted, "instance started", inst)
	case types.InstanceStateStopped:
		inst.FinishedAt = time.Now()
		o.publish(events.EventInstanceStopped, "instance stopped", inst)
	case types.InstanceStateCreated:
		o.publish(events.EventInstanceCreated, "instance created", inst)
	case types.InstanceStateFailed:
		inst.FinishedAt = time.Now()
		metrics.InstancesFailed.Inc()
		o.publish(events.EventInstanceFailed, inst.Error, inst)
	case types.InstanceStateRemoved:
		o.publish(events.EventInstanceRemoved, "instance removed", inst)
	}

	o.logger.Debug().
		Str("instance", inst.ID).
		Str("service", inst.ServiceName).
		Str("state", string(to)).
		Msg("Instance state changed")
	return nil
}

// fail moves an instance to the terminal failed state, recording the
// cause. Instances that never reached created leave no store record,
// so a failed build or aborted creation has no artifacts.
func (o *Orchestrator) fail(inst *types.Instance, err error) {
	inst.Error = err.Error()
	if serr := o.setState(inst, types.InstanceStateFailed); serr != nil {
		o.logger.Error().Err(serr).Str("instance", inst.ID).Msg("Failed to mark instance failed")
	}
}

func (o *Orchestrator) publish(eventType events.EventType, message string, inst *types.Instance) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(events.New(eventType, message, map[string]string{
		"instance": inst.ID,
		"service":  inst.ServiceName,
		"project":  inst.Project,
	}))
}
