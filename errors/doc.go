// Package errors provides the structured error type shared by flowkit
// packages. Hook failures travel through a pipeline untouched; AppError is
// reserved for errors the library itself raises (caller misuse, invalid
// configuration, internal faults) so callers can branch on a stable code.
package errors
