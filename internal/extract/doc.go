// Package extract defines the types shared by the extraction pipeline: the
// work items read from configuration, per-attempt and per-item outcomes, and
// the error taxonomy used to decide which failures are worth retrying.
package extract
