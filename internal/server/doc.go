// Package server hosts the Fiber HTTP surface of the offline hub. Every
// request that is not a diagnostics call is converted into a worker request
// and dispatched through the registration on behalf of the foreground page,
// so the page sees exactly what the controlling worker decided to serve.
// Diagnostics live under /-/ and are registered by the routes subpackage.
package server
