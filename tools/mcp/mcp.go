package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Registry is a tools.Registry backed by one or more MCP server subprocesses.
// Tool names are exposed exactly as the servers report them; the first server
// to claim a name wins.
type Registry struct {
	clients []*client
	defs    map[string]tools.Definition
	owner   map[string]*client
}

type client struct {
	name string
	cmd  *exec.Cmd
	conn *mcpsdk.ClientSession
}

// NewRegistry starts the configured MCP servers, discovers their tools, and
// translates each tool's input schema into the engine's parameter specs.
func NewRegistry(ctx context.Context, servers []config.MCPServer) (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]tools.Definition),
		owner: make(map[string]*client),
	}

	for _, srv := range servers {
		cmd := exec.Command(srv.Command, srv.Args...)
		cmd.Stderr = os.Stderr
		mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "reactor", Version: "v1.0.0"}, nil)
		conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
		if err != nil {
			cmd.Process.Kill()
			r.Close()
			return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", srv.Name)
		}
		c := &client{name: srv.Name, cmd: cmd, conn: conn}
		r.clients = append(r.clients, c)

		listParams := &mcpsdk.ListToolsParams{}
		for {
			toolList, err := conn.ListTools(ctx, listParams)
			if err != nil {
				r.Close()
				return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", srv.Name)
			}
			for _, t := range toolList.Tools {
				if _, taken := r.defs[t.Name]; taken {
					continue
				}
				def := tools.Definition{
					Name:        t.Name,
					Description: t.Description,
					Params:      paramsFromSchema(t.InputSchema),
				}
				r.defs[t.Name] = def
				r.owner[t.Name] = c
			}
			if toolList.NextCursor == "" {
				break
			}
			listParams.Cursor = toolList.NextCursor
		}
	}

	return r, nil
}

func (r *Registry) List() []tools.Definition {
	out := make([]tools.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Execute sends the call to the owning MCP server and concatenates the text
// content of the result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	c, ok := r.owner[name]
	if !ok {
		return "", errors.New("tool '%s' is not provided by any MCP server", name)
	}
	result, err := c.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", name)
	}
	op := ""
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			op += text.Text
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", name, op)
	}
	return op, nil
}

// Close terminates all MCP server subprocesses.
func (r *Registry) Close() {
	for _, c := range r.clients {
		if c.conn != nil {
			c.conn.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			fmt.Printf("INFO: Terminating MCP server '%s'\n", c.name)
			c.cmd.Process.Kill()
		}
	}
}

// paramsFromSchema converts an MCP JSON schema into the flat {type, required}
// parameter map the validator works with. The schema is round-tripped through
// JSON so this does not depend on the SDK's schema representation.
func paramsFromSchema(schema any) map[string]tools.ParamSpec {
	params := make(map[string]tools.ParamSpec)
	if schema == nil {
		return params
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return params
	}
	var decoded struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return params
	}
	required := make(map[string]bool, len(decoded.Required))
	for _, name := range decoded.Required {
		required[name] = true
	}
	for name, prop := range decoded.Properties {
		params[name] = tools.ParamSpec{Type: prop.Type, Required: required[name]}
	}
	return params
}
