// Package local implements the interpreter execution backend: an HTTP
// service running Python snippets inside a sandboxed virtual environment,
// with pickled per-session state, plot detection by directory diff, and a
// client that satisfies the backend contract.
package local
