// Package store is the SQLite persistence layer.
//
// One database file holds everything: activated accounts, pets, vaccines,
// per-user reminder preferences, the registered-alarm set and the notifier
// dedup table. Dates that carry no time of day (birth dates, administered
// and due dates) are stored as "YYYY-MM-DD" text.
package store
