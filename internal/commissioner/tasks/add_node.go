package tasks

import (
	"fmt"

	"universed/internal/commissioner"
	"universed/internal/universe"
)

// Group labels for node addition, in execution order
const (
	GroupProvisioning          = "Provisioning"
	GroupInstallingSoftware    = "InstallingSoftware"
	GroupStartingNodeProcesses = "StartingNodeProcesses"
	GroupConfigureUniverse     = "ConfigureUniverse"
	GroupWaitForDataMigration  = "WaitForDataMigration"
	GroupStartingNode          = "StartingNode"
	GroupStoppingNodeProcesses = "StoppingNodeProcesses"
	GroupRemovingUnusedServers = "RemovingUnusedServers"
	GroupRemovingUniverseEntry = "RemovingUniverseEntry"
	GroupCreatingTable         = "CreatingTable"
)

// PlanAddNodeToUniverse brings a previously removed or decommissioned node
// back into the cluster. The node walks Adding -> ToJoinCluster -> Live;
// a master process is started only when the quorum is under-replicated.
func PlanAddNodeToUniverse(d *commissioner.Deps, u *universe.Universe, p commissioner.TaskParams) ([]commissioner.StepGroup, error) {
	node := u.Node(p.NodeName)
	if node == nil {
		return nil, commissioner.NewPreconditionFailed(
			fmt.Sprintf("node %s does not exist in universe %s", p.NodeName, u.Name))
	}
	switch node.State {
	case universe.NodeRemoved, universe.NodeDecommissioned:
	default:
		return nil, commissioner.NewPreconditionFailed(
			fmt.Sprintf("node %s is in state %s, must be Removed or Decommissioned", node.NodeName, node.State))
	}

	// A decommissioned node lost its instance and software; a removed one
	// keeps both and only needs its processes back.
	needsProvision := node.State == universe.NodeDecommissioned
	wasUnderReplicated := u.MastersUnderReplicated()

	var groups []commissioner.StepGroup

	provisioning := commissioner.StepGroup{Name: GroupProvisioning}
	provisioning.Steps = append(provisioning.Steps, setNodeState(d, u.UUID, node.NodeName, universe.NodeAdding))
	if needsProvision {
		provisioning.Steps = append(provisioning.Steps, provisionNode(d, u, node))
	}
	groups = append(groups, provisioning)

	installing := commissioner.StepGroup{Name: GroupInstallingSoftware}
	if needsProvision {
		installing.Steps = append(installing.Steps, installSoftware(d, u, node))
	}
	groups = append(groups, installing)

	starting := commissioner.StepGroup{Name: GroupStartingNodeProcesses}
	starting.Steps = append(starting.Steps, setNodeState(d, u.UUID, node.NodeName, universe.NodeToJoinCluster))
	starting.Steps = append(starting.Steps, startServer(d, node.NodeName, universe.ProcessTserver))
	if wasUnderReplicated {
		starting.Steps = append(starting.Steps, startServer(d, node.NodeName, universe.ProcessMaster))
	}
	groups = append(groups, starting)

	configure := commissioner.StepGroup{Name: GroupConfigureUniverse}
	configure.Steps = append(configure.Steps, markTserverMember(d, u.UUID, node.NodeName))
	if wasUnderReplicated {
		configure.Steps = append(configure.Steps, addToMasterQuorum(d, u.UUID, node.NodeName))
	}
	groups = append(groups, configure)

	groups = append(groups, commissioner.StepGroup{
		Name:  GroupWaitForDataMigration,
		Steps: []commissioner.Step{waitForLoadBalance(d, u)},
	})

	// DNS refresh happens after membership is recorded so the endpoint
	// set includes the new tserver.
	groups = append(groups, commissioner.StepGroup{
		Name: GroupStartingNode,
		Steps: []commissioner.Step{
			setNodeState(d, u.UUID, node.NodeName, universe.NodeLive),
			updateDNS(d, u.UUID),
		},
	})

	return groups, nil
}
