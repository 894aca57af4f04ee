// Package mcpservice dispatches MCP JSON-RPC requests (initialize, ping,
// tools/list, tools/call) to a fixed set of typed tools. Transports turn each
// message into an auth.Request and run it through an auth.Handler chain that
// ends in Server.Handler, so authentication and instrumentation compose as
// ordinary middleware:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//	srv, err := mcpservice.NewServer(mcpservice.ServerInfo{Name: "echo", Version: "1.0.0"},
//	    mcpservice.WithTools(
//	        mcpservice.NewTool("echo", func(ctx context.Context, a EchoArgs) (*mcpservice.CallToolResult, error) {
//	            return mcpservice.TextResult(a.Message), nil
//	        }, mcpservice.WithToolDescription("Echo a message back")),
//	    ),
//	)
//	h := auth.Chain(srv.Handler(), mw.Wrap, telemetry.Instrument(batcher, icfg))
//	resp := srv.Serve(ctx, h, msg, auth.Request{Transport: auth.TransportStdio})
package mcpservice
