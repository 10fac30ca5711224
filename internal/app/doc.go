// Package app wires the gap analysis HTTP server together: configuration,
// logging, OpenTelemetry, the analysis and health services, the middleware
// chain and the chi router.
//
// # Initialization Flow
//
//	1. Configuration is loaded by the caller and passed in
//	2. Logging and observability are initialized
//	3. The demographic catalog is loaded and the analysis engine built
//	4. HTTP handlers and middleware are set up
//	5. The HTTP server is started; SIGINT and SIGTERM trigger graceful shutdown
package app
