// Package harness runs decode Jobs and turns what they produced into one
// verdict.
//
// # Outcomes
//
// Every Job that runs to completion gets exactly one Outcome:
//
//   - pass: the tool exited 0 and every digest field matched
//   - fail: digests differ; every mismatched field is listed
//   - tool_error: the tool exited non-zero
//   - timeout: the per-Job deadline expired and the tool was killed
//   - internal_error: the harness itself failed for this Job
//
// # Scheduling
//
// Scheduler runs Jobs through a bounded pool. Each worker calls the
// Decoder and then the Processor synchronously; nothing fans out inside a
// Job. Results are stored by Job index so the Report is always in the
// order the Jobs were given, whatever order they finished in.
//
// Cancelling the context passed to Run stops dispatch and kills running
// tools. Jobs that finished keep their outcome; Jobs that were cut short
// are reported as not completed and the Report is marked Interrupted.
//
// A Processor error wrapped with Fatal aborts the whole run. Any other
// Processor error only affects its own Job.
//
// # Verdict
//
// Aggregate reduces a Report to counts and an exit code:
//
//	interrupted                      3
//	any internal_error               4
//	any fail, tool_error, timeout    1
//	otherwise                        0
package harness
