// Package tasks acquires catalog tracks into the local library.
//
// # Acquisition
//
// [Pipeline.Acquire] runs the stages in order and stops at the first failure:
//
//  1. Lookup: return the existing record for (user, track) if there is one
//  2. Resolve: derive the catalog URL from the reference
//  3. Convert: ask the conversion provider for a download link
//  4. Transfer: download the audio
//  5. Store: write it under the deterministic key "{user}/{track}.audio"
//  6. Record: insert the acquisition record
//
// Failures are returned as [*StageError]. A record is written only after the blob is stored,
// and a conflicting insert resolves to the record that won.
//
// # Bulk
//
// [Pipeline.BulkAcquire] and [Pipeline.AcquireSaved] fan acquisitions out to a rate limited worker pool.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Sends never block.
package tasks
