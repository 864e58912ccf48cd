// Package commissioner is the task orchestration engine of the control
// plane. It turns a submitted operation into a tracking record, runs it on
// a bounded worker pool, serializes mutations per universe through the
// universe store's mutation lock, and executes the operation's plan as an
// ordered queue of step groups: groups run strictly in order, steps inside
// a group fan out in parallel.
//
// Operations are a closed set of type tags, each mapped to a planning
// function. Planning is pure: it reads the locked universe snapshot and
// the request parameters and returns step groups; all side effects happen
// when the queue executes the plan.
//
// Failure at any point leaves the universe record unlocked: the runner
// releases the mutation lock on success, on business failure and on
// panic, and a startup recovery pass force-unlocks universes whose owning
// task is no longer running.
package commissioner
