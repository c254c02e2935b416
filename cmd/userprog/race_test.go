//go:build race

package main

// bolt v1.3.1 trips checkptr when built with the race detector.
const raceEnabled = true
