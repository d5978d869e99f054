// Package config loads the statically-shaped Stratus configuration files:
// cluster.yaml (paths and feature settings), cloud.yaml (the per-vendor
// node-type catalog), and accounts/<name>.yaml (owning accounts). Files
// are decoded strictly, so a misspelled or unknown key is an error rather
// than a silently ignored field, and validated with struct tags.
package config
