package storage

// Package storage is the persistence layer shared by the bot and the admin CLI.
//
// It provides:
//   - the schedule cache table (keyed by group and date, one row per day)
//   - user preferences (selected group, notification flag)
//
// SQLite is always used for users. The cache may alternatively live in Redis.
