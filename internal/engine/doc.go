// Package engine contains the tick orchestrator and the simulation systems.
//
// One tick is: kinematics, then transmission, then progression. Transmission
// and progression only decide; all reclassifications of a tick are applied
// in a single commit on the population, so no system ever iterates a
// collection that is being modified.
//
// ARCHITECTURAL RULE: only the Engine mutates the population. The Ticker and
// the presentation layer go through Step, Reset and Snapshot.
package engine
