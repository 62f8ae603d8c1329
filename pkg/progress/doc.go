// Package progress delivers best-effort analysis progress events to an
// optional consumer without ever blocking the producing loop.
package progress
