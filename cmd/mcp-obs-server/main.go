// Command mcp-obs-server runs an MCP server whose operations are guarded by
// mcp-obs OAuth and exported to the mcp-obs telemetry pipeline.
package main

// version can be set during build with -ldflags.
var version = "dev"

func main() {
	rootCmd.Version = version
	Execute()
}
