// Package server hosts the Fiber HTTP service that plays the interceptor's
// host: request ID and recover middleware, the catch-all route that hands
// every exchange to a ProxyHandler, and the shared upstream HTTP client.
// Diagnostics routes live under /-/ and are registered by the routes package.
package server
