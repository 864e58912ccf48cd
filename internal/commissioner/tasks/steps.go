// Package tasks holds the planners for every operation the engine runs,
// plus the step constructors they share. Planners are pure: they read the
// locked universe and emit step groups; all side effects live in steps.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"universed/internal/commissioner"
	"universed/internal/executors"
	"universed/internal/universe"
)

const serverReadyTimeout = 5 * time.Minute

// setNodeState persists a node lifecycle transition on the universe record
func setNodeState(d *commissioner.Deps, universeUUID uuid.UUID, nodeName string, state universe.NodeState) commissioner.Step {
	return commissioner.NewStep("SetNodeState", nodeName, func(ctx context.Context) error {
		return d.Universes.Update(ctx, universeUUID, func(u *universe.Universe) error {
			node := u.Node(nodeName)
			if node == nil {
				return fmt.Errorf("node %s not found in universe", nodeName)
			}
			node.State = state
			return nil
		})
	})
}

// provisionNode reserves the instance and runs the agent provisioning
func provisionNode(d *commissioner.Deps, u *universe.Universe, node *universe.NodeDetails) commissioner.Step {
	return commissioner.NewStep("ProvisionNode", node.NodeName, func(ctx context.Context) error {
		if d.Provider != nil {
			if _, err := d.Provider.ReserveInstance(ctx, node.CloudInfo.Zone, node.CloudInfo.InstanceType); err != nil {
				return fmt.Errorf("reserve instance for %s: %w", node.NodeName, err)
			}
		}
		return d.NodeAgent.Provision(ctx, executors.NodeParams{
			UniverseName:    u.Name,
			NodeName:        node.NodeName,
			InstanceType:    node.CloudInfo.InstanceType,
			Zone:            node.CloudInfo.Zone,
			SoftwareVersion: u.SoftwareVersion,
		})
	})
}

// installSoftware lays down the database binaries on one node
func installSoftware(d *commissioner.Deps, u *universe.Universe, node *universe.NodeDetails) commissioner.Step {
	return commissioner.NewStep("InstallSoftware", node.NodeName, func(ctx context.Context) error {
		return d.NodeAgent.InstallSoftware(ctx, executors.NodeParams{
			UniverseName:    u.Name,
			NodeName:        node.NodeName,
			InstanceType:    node.CloudInfo.InstanceType,
			Zone:            node.CloudInfo.Zone,
			SoftwareVersion: u.SoftwareVersion,
		})
	})
}

// startServer starts one server process and waits until it answers. Start
// and wait are a single step because steps inside a group carry no
// ordering guarantee.
func startServer(d *commissioner.Deps, nodeName string, process universe.ServerProcess) commissioner.Step {
	name := "StartMaster"
	if process == universe.ProcessTserver {
		name = "StartTserver"
	}
	return commissioner.NewStep(name, nodeName, func(ctx context.Context) error {
		if err := d.NodeAgent.StartProcess(ctx, nodeName, process); err != nil {
			return err
		}
		return d.DB.WaitForServer(ctx, nodeName, process, serverReadyTimeout)
	})
}

// stopServer stops one server process
func stopServer(d *commissioner.Deps, nodeName string, process universe.ServerProcess) commissioner.Step {
	name := "StopMaster"
	if process == universe.ProcessTserver {
		name = "StopTserver"
	}
	return commissioner.NewStep(name, nodeName, func(ctx context.Context) error {
		return d.NodeAgent.StopProcess(ctx, nodeName, process)
	})
}

// addToMasterQuorum registers a node's master with the quorum and records
// the membership on the universe
func addToMasterQuorum(d *commissioner.Deps, universeUUID uuid.UUID, nodeName string) commissioner.Step {
	return commissioner.NewStep("ChangeMasterConfig", nodeName, func(ctx context.Context) error {
		if err := d.DB.ChangeMasterConfig(ctx, nodeName, true); err != nil {
			return err
		}
		return d.Universes.Update(ctx, universeUUID, func(u *universe.Universe) error {
			node := u.Node(nodeName)
			if node == nil {
				return fmt.Errorf("node %s not found in universe", nodeName)
			}
			node.IsMaster = true
			return nil
		})
	})
}

// markTserverMember records tserver membership on the universe
func markTserverMember(d *commissioner.Deps, universeUUID uuid.UUID, nodeName string) commissioner.Step {
	return commissioner.NewStep("MarkTserverMember", nodeName, func(ctx context.Context) error {
		return d.Universes.Update(ctx, universeUUID, func(u *universe.Universe) error {
			node := u.Node(nodeName)
			if node == nil {
				return fmt.Errorf("node %s not found in universe", nodeName)
			}
			node.IsTserver = true
			return nil
		})
	})
}

// waitForLoadBalance blocks until tablet load has rebalanced
func waitForLoadBalance(d *commissioner.Deps, u *universe.Universe) commissioner.Step {
	return commissioner.NewStep("WaitForLoadBalance", u.Name, func(ctx context.Context) error {
		return d.DB.WaitForLoadBalance(ctx, serverReadyTimeout)
	})
}

// updateDNS publishes the universe endpoint record from its live tservers
func updateDNS(d *commissioner.Deps, universeUUID uuid.UUID) commissioner.Step {
	return commissioner.NewStep("UpdateDNS", "", func(ctx context.Context) error {
		u, err := d.Universes.Get(ctx, universeUUID)
		if err != nil {
			return err
		}
		addresses := make([]string, 0, len(u.Nodes))
		for _, node := range u.Nodes {
			if node.IsTserver && node.CloudInfo.PrivateIP != "" {
				addresses = append(addresses, node.CloudInfo.PrivateIP)
			}
		}
		return d.DNS.Upsert(ctx, u.Name, addresses)
	})
}

// publishDNS writes an endpoint record from a plan-time address set
func publishDNS(d *commissioner.Deps, universeName string, addresses []string) commissioner.Step {
	return commissioner.NewStep("UpdateDNS", universeName, func(ctx context.Context) error {
		return d.DNS.Upsert(ctx, universeName, addresses)
	})
}

// deleteDNS removes the universe endpoint record
func deleteDNS(d *commissioner.Deps, universeName string) commissioner.Step {
	return commissioner.NewStep("DeleteDNS", universeName, func(ctx context.Context) error {
		return d.DNS.Delete(ctx, universeName)
	})
}

// destroyNode tears down one node's instance
func destroyNode(d *commissioner.Deps, nodeName string) commissioner.Step {
	return commissioner.NewStep("DestroyNode", nodeName, func(ctx context.Context) error {
		return d.NodeAgent.Destroy(ctx, nodeName)
	})
}

// deleteUniverseRecord removes the universe from the store
func deleteUniverseRecord(d *commissioner.Deps, universeUUID uuid.UUID) commissioner.Step {
	return commissioner.NewStep("DeleteUniverseRecord", "", func(ctx context.Context) error {
		return d.Universes.Delete(ctx, universeUUID)
	})
}

// tolerant wraps a step so failures are logged and swallowed, used by
// force-destroy where partial teardown must not stop the plan
func tolerant(d *commissioner.Deps, step commissioner.Step) commissioner.Step {
	return commissioner.NewStep(step.Name(), step.Target(), func(ctx context.Context) error {
		if err := step.Run(ctx); err != nil {
			d.Log().WarnContext(ctx, "ignoring step failure under force",
				"step", step.Name(), "target", step.Target(), "error", err.Error())
		}
		return nil
	})
}
