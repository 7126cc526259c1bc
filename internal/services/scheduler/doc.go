// Package scheduler runs named recurring jobs on top of robfig/cron.
//
// Jobs are identified by name; AddSchedule/AddCron/AddInterval upsert by
// name and Remove cancels by name, so callers can re-register on config
// changes without tracking entry IDs.
package scheduler
