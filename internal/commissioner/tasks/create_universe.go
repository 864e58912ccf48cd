package tasks

import (
	"sort"

	"universed/internal/commissioner"
	"universed/internal/universe"
)

// PlanCreateUniverse provisions every node of a fresh universe, installs
// software, starts the server processes, and publishes the endpoint. The
// first ReplicationFactor nodes in name order carry the master quorum.
func PlanCreateUniverse(d *commissioner.Deps, u *universe.Universe, p commissioner.TaskParams) ([]commissioner.StepGroup, error) {
	if len(u.Nodes) == 0 {
		return nil, commissioner.NewPreconditionFailed("universe has no nodes to create")
	}
	if u.ReplicationFactor > len(u.Nodes) {
		return nil, commissioner.NewPreconditionFailed("replication factor exceeds node count")
	}
	for _, node := range u.Nodes {
		if node.State != universe.NodeToBeAdded {
			return nil, commissioner.NewPreconditionFailed("universe has nodes beyond the ToBeAdded state")
		}
	}

	names := u.NodeNames()
	sort.Strings(names)
	masters := names[:u.ReplicationFactor]
	isMaster := make(map[string]bool, len(masters))
	for _, name := range masters {
		isMaster[name] = true
	}

	provisioning := commissioner.StepGroup{Name: GroupProvisioning}
	installing := commissioner.StepGroup{Name: GroupInstallingSoftware}
	starting := commissioner.StepGroup{Name: GroupStartingNodeProcesses}
	for _, name := range names {
		node := u.Node(name)
		provisioning.Steps = append(provisioning.Steps, provisionNode(d, u, node))
		installing.Steps = append(installing.Steps, installSoftware(d, u, node))
		starting.Steps = append(starting.Steps, startServer(d, name, universe.ProcessTserver))
		if isMaster[name] {
			starting.Steps = append(starting.Steps, startServer(d, name, universe.ProcessMaster))
		}
	}

	configure := commissioner.StepGroup{Name: GroupConfigureUniverse}
	for _, name := range names {
		configure.Steps = append(configure.Steps, markTserverMember(d, u.UUID, name))
		if isMaster[name] {
			configure.Steps = append(configure.Steps, addToMasterQuorum(d, u.UUID, name))
		}
		configure.Steps = append(configure.Steps, setNodeState(d, u.UUID, name, universe.NodeLive))
	}
	// The endpoint set is known at plan time: every node serves tablets.
	addresses := make([]string, 0, len(names))
	for _, name := range names {
		if ip := u.Node(name).CloudInfo.PrivateIP; ip != "" {
			addresses = append(addresses, ip)
		}
	}
	configure.Steps = append(configure.Steps, publishDNS(d, u.Name, addresses))

	return []commissioner.StepGroup{provisioning, installing, starting, configure}, nil
}
