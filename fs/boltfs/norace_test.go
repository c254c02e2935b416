//go:build !race

package boltfs

const raceEnabled = false
