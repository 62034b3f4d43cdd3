// Package fetch talks to remote origins: a bounded HEAD pre-check and a
// streaming GET whose body is consumed chunk by chunk.
//
// Cancellation is cooperative. The context passed to Client.Stream is the
// transfer's cancellation token; Stream.Next checks it before every read and
// ends the sequence with io.EOF (and Cancelled reporting true) once it fires.
// Faults are mapped onto the typed errors of package transfer.
package fetch
