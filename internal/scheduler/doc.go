// Package scheduler provides the in-process trigger service.
//
// # Overview
//
// Two kinds of triggers run on a shared worker pool:
//
//   - Cron tasks ("digest:refresh") for recurring jobs, registered with
//     AddCron/AddDaily. 5-field and 6-field (seconds) specs are accepted,
//     plus descriptors like "@daily" and "@every 30m".
//   - One-shot timers (AddOnce) for reminder instants. Names are stable and
//     human readable ("vaccine:12:lead:7") so a timer can be replaced
//     (upserted) or removed deterministically.
//
// # Concurrency and overlap
//
// Jobs run on a worker pool with a per-attempt timeout and retry backoff.
// The TaskOptions overlap policy can either allow overlap or skip a run if
// the previous run is still executing.
//
// # Lifecycle
//
// The Service can be started/stopped at runtime (e.g. via config hot
// reload). Registering tasks while stopped is supported: definitions are
// stored and applied on the next start. One-shot definitions survive a
// Stop/Start cycle; timers are rebuilt from them.
package scheduler
