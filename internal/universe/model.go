// Package universe holds the managed cluster model and its durable store.
//
// A universe is the distributed database deployment the control plane
// mutates. Entities reference each other by UUID keys, never by live
// pointers; all lookups go through the Store.
package universe

import (
	"github.com/google/uuid"
)

// NodeState represents the lifecycle state of a database node
type NodeState string

const (
	NodeToBeAdded           NodeState = "ToBeAdded"
	NodeAdding              NodeState = "Adding"
	NodeProvisioned         NodeState = "Provisioned"
	NodeSoftwareInstalled   NodeState = "SoftwareInstalled"
	NodeToJoinCluster       NodeState = "ToJoinCluster"
	NodeLive                NodeState = "Live"
	NodeStopping            NodeState = "Stopping"
	NodeStopped             NodeState = "Stopped"
	NodeRemoving            NodeState = "Removing"
	NodeRemoved             NodeState = "Removed"
	NodeBeingDecommissioned NodeState = "BeingDecommissioned"
	NodeDecommissioned      NodeState = "Decommissioned"
)

// ServerProcess identifies a database server process on a node
type ServerProcess string

const (
	ProcessMaster  ServerProcess = "master"
	ProcessTserver ServerProcess = "tserver"
)

// CloudInfo describes the infrastructure backing a node
type CloudInfo struct {
	Cloud        string `json:"cloud"`
	Region       string `json:"region"`
	Zone         string `json:"zone"`
	InstanceType string `json:"instance_type"`
	PrivateIP    string `json:"private_ip,omitempty"`
}

// NodeDetails describes one database node in a universe.
// Placement is referenced by UUID, resolved through the universe record.
type NodeDetails struct {
	NodeName      string    `json:"node_name"`
	NodeUUID      uuid.UUID `json:"node_uuid"`
	State         NodeState `json:"state"`
	CloudInfo     CloudInfo `json:"cloud_info"`
	PlacementUUID uuid.UUID `json:"placement_uuid"`
	IsMaster      bool      `json:"is_master"`
	IsTserver     bool      `json:"is_tserver"`
}

// Placement describes where a subset of nodes lives
type Placement struct {
	UUID   uuid.UUID `json:"uuid"`
	Cloud  string    `json:"cloud"`
	Region string    `json:"region"`
	Zones  []string  `json:"zones"`
}

// Universe is the managed cluster record. The version counter and the
// update-in-progress flag together implement the mutation lock; they are
// only ever changed through Store.Lock and Store.Release.
type Universe struct {
	UUID              uuid.UUID               `json:"uuid"`
	Name              string                  `json:"name"`
	CustomerUUID      uuid.UUID               `json:"customer_uuid"`
	Version           int64                   `json:"version"`
	UpdateInProgress  bool                    `json:"update_in_progress"`
	ErrorString       string                  `json:"error_string,omitempty"`
	ReplicationFactor int                     `json:"replication_factor"`
	SoftwareVersion   string                  `json:"software_version"`
	DNSName           string                  `json:"dns_name,omitempty"`
	Nodes             map[string]*NodeDetails `json:"nodes"`
	Placements        map[string]*Placement   `json:"placements"`
}

// Node returns the node with the given name, or nil
func (u *Universe) Node(name string) *NodeDetails {
	return u.Nodes[name]
}

// MasterCount returns the number of nodes currently running a master process
func (u *Universe) MasterCount() int {
	count := 0
	for _, n := range u.Nodes {
		if n.IsMaster {
			count++
		}
	}
	return count
}

// MastersUnderReplicated reports whether the universe is running fewer
// masters than its replication factor requires
func (u *Universe) MastersUnderReplicated() bool {
	return u.MasterCount() < u.ReplicationFactor
}

// NodeNames returns the names of all nodes in stable order-free form
func (u *Universe) NodeNames() []string {
	names := make([]string, 0, len(u.Nodes))
	for name := range u.Nodes {
		names = append(names, name)
	}
	return names
}

// Clone returns a deep copy of the universe record
func (u *Universe) Clone() *Universe {
	clone := *u
	clone.Nodes = make(map[string]*NodeDetails, len(u.Nodes))
	for name, n := range u.Nodes {
		nodeCopy := *n
		clone.Nodes[name] = &nodeCopy
	}
	clone.Placements = make(map[string]*Placement, len(u.Placements))
	for id, p := range u.Placements {
		placementCopy := *p
		placementCopy.Zones = append([]string(nil), p.Zones...)
		clone.Placements[id] = &placementCopy
	}
	return &clone
}
