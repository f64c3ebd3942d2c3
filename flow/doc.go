// Package flow is a lazy dataflow engine for sequences produced by slow,
// paginated or rate-limited sources.
//
// A Pipeline only describes the work. Nothing runs until a terminal (Collect,
// Run, Drain or Iter) pulls from it, and every pull is one unit of demand
// travelling upstream. A stage hands its values downstream one at a time and
// does not read again before the values of its previous read are consumed,
// so a slow consumer slows the whole chain down without buffers.
//
// # Nodes
//
// Sources and transforms are nodes driven by hooks:
//
//   - NewSource / FromFunc: a Read hook runs once per demand, may emit any
//     number of values, may block, and calls emit.Close when it is done.
//   - Through / ThroughFunc: an OnValue hook runs once per upstream value and
//     an optional Flush hook runs when the upstream is exhausted.
//   - NewPushable: a source fed from outside the pipeline.
//
// Emitter.Go schedules an emission that completes later without holding up
// the current read; the node only reports completion once every scheduled
// emission has returned, even after it was closed.
//
// # Operators
//
//   - Map, Filter, Observe, While, Batch, FlatMap, Reduce, Concat, Merge
//   - RateLimit: token-bucket pacing, values are delayed and never dropped
//   - MapParallel: up to n concurrent calls, results in input order
//   - Parallelize: n lanes each running a sub-pipeline, results in
//     completion order
//
// # Errors
//
// The first error raised anywhere fails the run and is returned unchanged by
// the terminal. Panics in hooks are returned as *PanicError. Running a
// pipeline twice returns an *errors.AppError with code PIPELINE_REUSED.
//
// # Usage
//
//	pages := flow.FromFunc(listPages)
//	details := flow.MapParallel(pages, 8, fetchDetail)
//	enriched := flow.Parallelize(details, 2, func(lane *flow.Pipeline[Detail]) *flow.Pipeline[Row] {
//	    return flow.Map(lane, enrich)
//	})
//	err := flow.Run(ctx, flow.Batch(enriched, 100), store, flow.WithTracing("ingest"))
package flow
