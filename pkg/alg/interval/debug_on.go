//go:build intervaldebug

package interval

const debugChecks = true
