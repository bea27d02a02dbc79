// Package archive copies audit events out of the store into timestamped
// files for long-term retention.
//
// The audit store is append-only, so retention works by export rather than
// deletion: each run writes the events recorded since the previous run to
// audit-<until>.<ext> in the archive directory and advances a watermark
// file. Events are never removed from storage.
//
// Runs can be triggered directly or on a cron schedule:
//
//	archiver, err := archive.New(store, &archive.Config{
//	    Dir:      "data/archive",
//	    Format:   "jsonl",
//	    Schedule: "0 3 * * *",
//	}, logger)
//	scheduler := archive.NewScheduler(archiver)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
package archive
