// Package stores persists planning runs and their diagnostic artifacts.
//
// SQLiteStore keeps the run history (runs, horizon attempts, events and
// artifacts) in SQLite with an embedded golang-migrate migration set.
// Artifacts can also go to a directory (DirSink), to fixed files
// (FileSink) or to an S3 bucket (S3Sink).
package stores
