package tasks

import (
	"context"
	"fmt"

	"universed/internal/commissioner"
	"universed/internal/universe"
)

// PlanCreateTable issues one DDL call against a live universe
func PlanCreateTable(d *commissioner.Deps, u *universe.Universe, p commissioner.TaskParams) ([]commissioner.StepGroup, error) {
	if p.Keyspace == "" || p.TableName == "" {
		return nil, commissioner.NewPreconditionFailed("keyspace and table name are required")
	}
	live := 0
	for _, node := range u.Nodes {
		if node.State == universe.NodeLive {
			live++
		}
	}
	if live == 0 {
		return nil, commissioner.NewPreconditionFailed("universe has no live nodes")
	}

	step := commissioner.NewStep("CreateTable",
		fmt.Sprintf("%s.%s", p.Keyspace, p.TableName),
		func(ctx context.Context) error {
			return d.DB.CreateTable(ctx, p.Keyspace, p.TableName)
		})

	return []commissioner.StepGroup{{Name: GroupCreatingTable, Steps: []commissioner.Step{step}}}, nil
}
