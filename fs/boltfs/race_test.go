//go:build race

package boltfs

// bolt v1.3.1 trips checkptr when built with the race detector.
const raceEnabled = true
