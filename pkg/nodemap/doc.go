// Package nodemap maintains the shared mapping from logical cluster host
// names to live cloud instances. It owns the lifecycle transitions (power
// on, power off), reconciles the registry against a desired host set,
// journals closed usage intervals, and regenerates the name-resolution
// artifacts, all under a cross-process file lock so that independently
// launched invocations never interleave a read-modify-write sequence.
//
// The package never calls a cloud API: power off returns the freed
// instance id and leaves termination to the caller.
package nodemap
