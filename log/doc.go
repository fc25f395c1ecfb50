// Package log provides the leveled logging facade used across the
// ingestion pipeline and retriever.
//
// Components log through the Logger interface so callers can plug in any
// backend. Two implementations ship with the package: DefaultLogger on the
// standard library and GologLogger on kataras/golog for colored, leveled
// terminal output. A package-level logger serves code paths where threading
// a Logger through would be noise; NoOpLogger silences a component
// entirely.
package log
