// Package rules defines the declarative automation rule model and its
// SQLite persistence.
//
// A rule pairs a list of conditions (sensor thresholds, time windows,
// device status, weather) with a list of actions (actuator commands,
// notifications). Conditions combine left-to-right through per-condition
// logical operators with no precedence. Rules carry an integer priority
// used by the engine's conflict arbitration: within one evaluation cycle
// the highest-priority rule wins each actuator.
package rules
