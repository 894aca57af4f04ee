package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/mcpservice"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"minLength=1,description=Text to echo back"`
}

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=First addend"`
	B float64 `json:"b" jsonschema:"description=Second addend"`
}

type whoamiArgs struct{}

func demoTools() []mcpservice.Tool {
	return []mcpservice.Tool{
		mcpservice.NewTool("echo", func(ctx context.Context, a echoArgs) (*mcpservice.CallToolResult, error) {
			if strings.TrimSpace(a.Text) == "" {
				return mcpservice.Errorf("text must not be blank"), nil
			}
			return mcpservice.TextResult(a.Text), nil
		}, mcpservice.WithToolDescription("Echo the provided text.")),

		mcpservice.NewTool("add", func(ctx context.Context, a addArgs) (*mcpservice.CallToolResult, error) {
			return mcpservice.TextResult(fmt.Sprintf("%g", a.A+a.B)), nil
		}, mcpservice.WithToolDescription("Add two numbers.")),

		mcpservice.NewTool("whoami", func(ctx context.Context, _ whoamiArgs) (*mcpservice.CallToolResult, error) {
			ac, ok := auth.FromContext(ctx)
			if !ok {
				return mcpservice.Errorf("no authenticated caller"), nil
			}
			return mcpservice.TextResult(fmt.Sprintf("user=%s client=%s scopes=%s expires=%s",
				ac.UserID, ac.ClientID, strings.Join(ac.Scopes, " "),
				ac.Expiry().UTC().Format(time.RFC3339))), nil
		}, mcpservice.WithToolDescription("Describe the authenticated caller.")),
	}
}
