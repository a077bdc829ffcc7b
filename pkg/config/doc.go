/*
Package config loads and validates the agent configuration.

Configuration is resolved in three layers, later layers winning:
documented defaults, an optional YAML file, then SPOT_SDK_* environment
variables. The resulting SpotConfig is validated once and never mutated
afterwards, so all packages read it without synchronization.
*/
package config
