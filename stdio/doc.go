// Package stdio serves an mcpservice.Server over newline-delimited JSON-RPC
// on stdin/stdout. It is intended for embedding servers as subprocesses and
// for local development.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : bearer token per tools/call message, or the OS user
//	                   when no auth middleware is configured
//	Transport        : one JSON-RPC message per line
//
// Credentials are read from params._meta.authorization, then
// params._meta.auth, then a top-level "authorization" member of the message.
// Only tools/call is authenticated; initialize, ping and tools/list are served
// without a token.
// Rejections are reported in-band: a missing or invalid token as -32602 and
// insufficient scope as -32603 with data.missing_scopes.
//
// Example:
//
//	h := stdio.NewHandler(srv, mw, stdio.WithMiddleware(telemetry.Instrument(batcher, icfg)))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
