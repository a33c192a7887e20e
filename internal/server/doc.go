// Package server hosts the Fiber diagnostics service and the net/http
// transport that feeds upstream responses into the revalidating cache.
// Routes live in the routes subpackage; this package only builds the app
// skeleton (recover, request IDs, access logging) and the upstream client,
// so keep exports narrow and accept explicit dependencies.
package server
