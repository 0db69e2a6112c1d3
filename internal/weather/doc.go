// Package weather fetches current conditions for the farm site from an
// OpenWeatherMap-compatible API.
//
// Observations are cached with a TTL so the rule engine can evaluate
// WEATHER conditions every cycle without hammering the upstream API.
// The engine treats a fetch failure as "conditions unknown": weather
// conditions evaluate to false rather than failing the cycle.
package weather
