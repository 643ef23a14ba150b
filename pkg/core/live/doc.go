// Package live is the client-resident half of the voice loop: level
// monitoring against the ambient floor, a capture recorder with a hard
// duration cap, and a state machine that drives the record / transcribe /
// reply / playback cycle against the server API.
package live
