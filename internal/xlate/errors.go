// Package xlate implements the translation entry and translation table:
// the table-driven rewrite of arbitration IDs and in-payload signals.
package xlate

import "errors"

// Sentinel errors, one per design-level error kind from the error handling
// design. Callers classify with errors.Is.
var (
	// ErrBadMapping signals a decode/encode precondition violation or a
	// bit splice that would run past bit 63 of the destination payload.
	ErrBadMapping = errors.New("xlate: bad mapping")
	// ErrDlcMismatch names the too-short-source-payload case. Entry.Apply
	// does not return it: it reports that case as (nil, nil) and the frame
	// is silently dropped.
	ErrDlcMismatch = errors.New("xlate: dlc mismatch")
	// ErrBadTable signals a fatal loader error: a missing or non-array
	// "entries" field.
	ErrBadTable = errors.New("xlate: bad table")
	// ErrBadEntry signals a single entry was rejected by the loader
	// (invalid source_id/target_id or malformed structure); the entry is
	// skipped and loading continues.
	ErrBadEntry = errors.New("xlate: bad entry")
	// ErrBadSignal signals a single signal definition was rejected by the
	// loader; the signal is skipped and the entry is still created.
	ErrBadSignal = errors.New("xlate: bad signal")
)
