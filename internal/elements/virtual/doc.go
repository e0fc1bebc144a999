// Package virtual provides hardware-free elements.
//
// Relay is an on/off channel with an optional automatic turn-off. Thermostat
// holds a setpoint and two weekly schedules (heating and cooling) that can
// be changed from either side: the server pushes schedules down, local edits
// are pushed up and retried until the server acknowledges them.
//
// Both are useful on a development box with no attached hardware and as
// reference implementations of the element hooks.
package virtual
