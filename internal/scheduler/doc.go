// Package scheduler coalesces rapid count edits into as few remote writes
// as possible without losing or reordering the value the user settled on.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All scheduler state lives on the Run goroutine. Edits, flushes, timer
// fires and write completions are events processed one at a time, so no
// per-title state needs a lock. Public methods enqueue an event and return
// once the loop has processed it.
//
// Per title:
//   - An edit (re)starts the debounce timer. Only the last value before the
//     window closes is written.
//   - At most one write is in flight. An edit that arrives meanwhile is kept
//     as the single follow-up value and written as soon as the first write
//     resolves; intermediate values are dropped.
//   - A failed write is reported and left retryable. There is no automatic
//     retry.
//
// Whole session:
//   - Hold defers every dispatch (timer fires and flushes) until Release,
//     so a batch commit never races a single-title write.
//   - Abandon cancels every unfired timer and forgets pending values.
//
// Writes that have already been dispatched are never cancelled; their
// results are applied when they arrive.
package scheduler
