package storage

// Package storage persists the run history: one compact record per
// assistant invocation, appended by the execution queue and read back by
// the status tooling.
