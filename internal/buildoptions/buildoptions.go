// Package buildoptions holds constants that tune the interpreter without
// changing its semantics: the call-stack depth ceiling and the
// straight-line suspend-poll interval.
package buildoptions

// CallStackCeiling bounds call-frame depth (spec §3 invariant: "Call-stack
// depth is bounded... recommended >= 1024"). Exceeding it traps
// CallStackOverflow.
var CallStackCeiling = 1024

// SuspendPollInterval is the number of straight-line instructions between
// suspend-condition polls when no back edge has been taken (spec §4.2:
// "every N straight-line steps... N ~ 256 is a reasonable default").
var SuspendPollInterval = 256
