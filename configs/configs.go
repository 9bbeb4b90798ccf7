// Package configs holds process-wide tunables and small debug-logging
// helpers shared across the engine.
package configs

import (
	"log"
	"time"
)

// Debugging switches. cmd/fatengine sets ShowDebugInfo from its -debug
// flag.
var (
	ShowDebugInfo = false
	ShowWarnings  = true
	LogToFile     = false
)

// Hard-point execution parameters.
const (
	SettleDelay          = 3 * time.Second
	InterStepDelay       = 1 * time.Second
	DeviationThresholdPc = 1.0 // percent of range, AI/AO
	DefaultRangeLow      = 0.0
	DefaultRangeHigh     = 100.0
)

// Concurrency/resource parameters.
const (
	DefaultSemaphoreBound = 64
	LinkOpTimeout         = 5 * time.Second
)

// ResultService coalescing parameters.
const (
	CoalesceBatchSize  = 10
	CoalesceWaitWindow = 500 * time.Millisecond
	DrainTimeout       = 5 * time.Second
)

// ManualTestIo polling interval.
const ManualPollInterval = 500 * time.Millisecond

// Store backend identifiers, selected on the CLI.
const (
	StoreMem      = "mem"
	StorePostgres = "postgres"
)

// TPrintf logs a trace line when ShowDebugInfo is set.
func TPrintf(format string, a ...interface{}) {
	if !ShowDebugInfo {
		return
	}
	if LogToFile {
		log.Printf(time.Now().Format("15:04:05.000")+" "+format, a...)
	} else {
		log.Printf(format, a...)
	}
}

// Warn logs a warning unless cond holds.
func Warn(cond bool, format string, a ...interface{}) bool {
	if !cond && ShowWarnings {
		log.Printf("WARN: "+format, a...)
	}
	return cond
}

// Assert panics with format if cond does not hold. Reserved for
// invariants that must never be violated by correct callers; recoverable
// conditions use errs instead.
func Assert(cond bool, format string, a ...interface{}) bool {
	if !cond {
		log.Panicf("ASSERT FAILED: "+format, a...)
	}
	return cond
}
