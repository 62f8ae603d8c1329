// Package artifacts turns an analysis run's execution history into the
// deduplicated set of plots, tables, and one insight shown to the user.
package artifacts
