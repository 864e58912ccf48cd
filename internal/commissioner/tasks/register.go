package tasks

import "universed/internal/commissioner"

// RegisterAll binds every built-in planner to its task type
func RegisterAll(r *commissioner.Registry) {
	r.Register(commissioner.TaskCreateUniverse, PlanCreateUniverse)
	r.Register(commissioner.TaskAddNodeToUniverse, PlanAddNodeToUniverse)
	r.Register(commissioner.TaskDestroyUniverse, PlanDestroyUniverse)
	r.Register(commissioner.TaskCreateTable, PlanCreateTable)
}
