// Package engine implements the rule evaluation cycle.
//
// Each cycle loads the farm's enabled rules, batch-fetches the latest
// sensor snapshots, and processes rules in descending priority order.
// Conflicts between rules targeting the same device are arbitrated
// with a cycle-local claim set: the first (highest-priority) rule to
// act on a device wins and later rules skip it. Manual overrides and
// notification cooldowns further suppress individual actions.
//
// The engine is deliberately error-tolerant: condition evaluation
// fails closed, action failures are recorded per action, and every
// rule produces exactly one audit entry per cycle regardless of
// outcome.
package engine
