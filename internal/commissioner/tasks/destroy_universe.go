package tasks

import (
	"universed/internal/commissioner"
	"universed/internal/universe"
)

// PlanDestroyUniverse stops every server process and tears the universe
// down. Under force, teardown step failures are logged and skipped so a
// half-broken universe can still be deleted; unreachable nodes must not
// orphan the record.
func PlanDestroyUniverse(d *commissioner.Deps, u *universe.Universe, p commissioner.TaskParams) ([]commissioner.StepGroup, error) {
	wrap := func(s commissioner.Step) commissioner.Step { return s }
	if p.Force {
		wrap = func(s commissioner.Step) commissioner.Step { return tolerant(d, s) }
	}

	stopping := commissioner.StepGroup{Name: GroupStoppingNodeProcesses}
	removing := commissioner.StepGroup{Name: GroupRemovingUnusedServers}
	for _, name := range u.NodeNames() {
		node := u.Node(name)
		if node.IsTserver {
			stopping.Steps = append(stopping.Steps, wrap(stopServer(d, name, universe.ProcessTserver)))
		}
		if node.IsMaster {
			stopping.Steps = append(stopping.Steps, wrap(stopServer(d, name, universe.ProcessMaster)))
		}
		removing.Steps = append(removing.Steps, wrap(destroyNode(d, name)))
	}
	removing.Steps = append(removing.Steps, wrap(deleteDNS(d, u.Name)))

	// Record deletion runs alone, after all teardown, and is never
	// tolerated: if it fails the universe must stay visible.
	entry := commissioner.StepGroup{
		Name:  GroupRemovingUniverseEntry,
		Steps: []commissioner.Step{deleteUniverseRecord(d, u.UUID)},
	}

	return []commissioner.StepGroup{stopping, removing, entry}, nil
}
