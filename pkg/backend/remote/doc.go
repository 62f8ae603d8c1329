// Package remote implements the container execution backend: code runs in a
// freshly deployed container on a Dokploy-style platform, session state is
// reconstructed by replaying the accepted code history, and results travel
// back through marker-delimited JSON on the container's log stream.
package remote
