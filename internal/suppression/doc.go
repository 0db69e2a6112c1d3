// Package suppression tracks the two TTL'd suppression states the rule
// engine respects: manual device overrides and per-rule notification
// cooldowns.
//
// Keys live in Redis when enabled ("manual_override:{deviceID}",
// "rule:notification:cooldown:{ruleID}") so they survive restarts; an
// in-process store serves as the fallback for single-node deployments
// without Redis.
package suppression
