package telemetry

import "go.opentelemetry.io/otel/attribute"

// MCP attribute keys.
const (
	OperationTypeKey  = attribute.Key("mcp.operation.type")
	ToolNameKey       = attribute.Key("mcp.tool.name")
	ToolInputSizeKey  = attribute.Key("mcp.tool.input.size")
	ToolOutputSizeKey = attribute.Key("mcp.tool.output.size")
	ToolSuccessKey    = attribute.Key("mcp.tool.success")
	ResourceURIKey    = attribute.Key("mcp.resource.uri")
	PromptNameKey     = attribute.Key("mcp.prompt.name")
	ServerSlugKey     = attribute.Key("mcp.server.slug")
	ServerVersionKey  = attribute.Key("mcp.server.version")
	UserIDKey         = attribute.Key("mcp.user.id")
	UserEmailKey      = attribute.Key("mcp.user.email")
	SessionIDKey      = attribute.Key("mcp.session.id")
	ErrorTypeKey      = attribute.Key("mcp.error.type")
	ErrorMessageKey   = attribute.Key("mcp.error.message")
	TransportKey      = attribute.Key("mcp.transport")
	DurationMillisKey = attribute.Key("duration_ms")
	ServiceNameKey    = attribute.Key("service.name")
	ServiceVersionKey = attribute.Key("service.version")
)

// Operation types.
const (
	OpToolCall     = "tool_call"
	OpResourceRead = "resource_read"
	OpResourceList = "resource_list"
	OpPromptGet    = "prompt_get"
	OpPromptList   = "prompt_list"
	OpToolList     = "tool_list"
	OpInitialize   = "initialize"
	OpPing         = "ping"
)

// Span names.
const (
	SpanToolCall     = "mcp.tool.call"
	SpanToolList     = "mcp.tool.list"
	SpanResourceRead = "mcp.resource.read"
	SpanResourceList = "mcp.resource.list"
	SpanPromptGet    = "mcp.prompt.get"
	SpanPromptList   = "mcp.prompt.list"
	SpanInitialize   = "mcp.initialize"
	SpanPing         = "mcp.ping"
)

// methodSpans maps JSON-RPC methods that are not tool invocations to their
// span name and operation type. Anything else is treated as a tool call.
var methodSpans = map[string][2]string{
	"initialize":     {SpanInitialize, OpInitialize},
	"ping":           {SpanPing, OpPing},
	"tools/list":     {SpanToolList, OpToolList},
	"resources/read": {SpanResourceRead, OpResourceRead},
	"resources/list": {SpanResourceList, OpResourceList},
	"prompts/get":    {SpanPromptGet, OpPromptGet},
	"prompts/list":   {SpanPromptList, OpPromptList},
}
