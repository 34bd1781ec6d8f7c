// Package dispatch runs the block lifecycle.
//
// One goroutine (Run) owns every slot and the scheduler. It selects over six
// sources and starts block operations in their own goroutines:
//   - Construction results: a slot becomes Owned, Failed or Skipped. Owned
//     blocks get their first update right away.
//   - Operation results: the block moves back into its slot and its next
//     interval is scheduled from the completion instant.
//   - Update requests pushed by blocks (bounded channel). Requests for a
//     block that is already running are coalesced.
//   - Clicks from the bar. A left click on a block with on_click runs the
//     command instead of the block's Click.
//   - Control signals: refresh all, refresh by number, reload.
//   - The wait timer for the earliest scheduled update.
//
// A block is handed to exactly one operation at a time. While it runs the
// slot is InFlight and holds nothing; the previous render stays on the bar.
// Update and click failures are rendered in place of the block and never
// unschedule it. After every event that changes what the bar shows, the full
// ordered snapshot goes to the Emitter.
//
// Operations are never cancelled or timed out here. A slow block only delays
// its own next render.
package dispatch
