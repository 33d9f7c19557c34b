// Package fanout runs one concurrent task per index and collects the results in index order.
//
// It is split into:
//   - Task handles (Handle): one goroutine per task, consumed exactly once by Await
//   - Lifecycle state (ExecutionState): validated per-index transitions guarded by the collector
//   - The collector (Collector): spawns every handle before awaiting the first, then
//     awaits them in creation order and emits each result
//
// Output order is a property of the await order, never of completion order.
package fanout
