// Package plugin lets an external executable stand in for a pipeline stage.
// The host launches the binary with hashicorp/go-plugin and talks to it over
// net/rpc; a plugin binary calls Serve with its agent implementation.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/scribe/internal/agent"
)

// HandshakeConfig is used to handshake between host and plugin.
var HandshakeConfig = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SCRIBE_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "scribe-agent",
}

const agentPluginName = "agent"

// ErrRemote wraps errors returned by the plugin's Act.
var ErrRemote = errors.New("plugin agent failed")

// AgentPlugin is the hcplugin.Plugin for serving and consuming an agent.
type AgentPlugin struct {
	Impl agent.Agent
}

func (p *AgentPlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &AgentRPCServer{Impl: p.Impl}, nil
}

func (p *AgentPlugin) Client(_ *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &AgentRPCClient{client: c}, nil
}

// ActArgs is the Act request.
type ActArgs struct {
	Input string
}

// ActReply is the Act response. Err carries the plugin's error text since
// net/rpc does not preserve error types.
type ActReply struct {
	Output string
	Err    string
}

// Identity describes the served agent.
type Identity struct {
	Name string
	Role string
}

// AgentRPCServer runs inside the plugin process.
type AgentRPCServer struct {
	Impl agent.Agent
}

func (s *AgentRPCServer) Identity(_ struct{}, reply *Identity) error {
	*reply = Identity{Name: s.Impl.Name(), Role: string(s.Impl.Role())}
	return nil
}

func (s *AgentRPCServer) Act(args ActArgs, reply *ActReply) error {
	out, err := s.Impl.Act(context.Background(), args.Input)
	reply.Output = out
	if err != nil {
		reply.Err = err.Error()
	}
	return nil
}

// AgentRPCClient is an agent.Agent that forwards to a plugin process.
type AgentRPCClient struct {
	client *rpc.Client

	mu sync.Mutex
	id *Identity
}

// NewAgentRPCClient wraps an established rpc connection.
func NewAgentRPCClient(c *rpc.Client) *AgentRPCClient {
	return &AgentRPCClient{client: c}
}

func (c *AgentRPCClient) identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == nil {
		var id Identity
		if err := c.client.Call("Plugin.Identity", struct{}{}, &id); err != nil {
			return Identity{Name: "plugin"}
		}
		c.id = &id
	}
	return *c.id
}

func (c *AgentRPCClient) Name() string    { return c.identity().Name }
func (c *AgentRPCClient) Role() agent.Role { return agent.Role(c.identity().Role) }

// Act calls the plugin. Cancelling ctx abandons the call; the plugin keeps
// running until its own Act returns.
func (c *AgentRPCClient) Act(ctx context.Context, input string) (string, error) {
	var reply ActReply
	call := c.client.Go("Plugin.Act", ActArgs{Input: input}, &reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-call.Done:
	}
	if call.Error != nil {
		return "", fmt.Errorf("plugin rpc: %w", call.Error)
	}
	if reply.Err != "" {
		return reply.Output, fmt.Errorf("%w: %s", ErrRemote, reply.Err)
	}
	return reply.Output, nil
}

// Serve runs impl as a plugin. It is called from the plugin binary's main
// and does not return.
func Serve(impl agent.Agent) {
	hcplugin.Serve(&hcplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hcplugin.Plugin{
			agentPluginName: &AgentPlugin{Impl: impl},
		},
	})
}

// Loaded is a running plugin process and the agent it serves.
type Loaded struct {
	Agent  agent.Agent
	client *hcplugin.Client
}

// Close stops the plugin process.
func (l *Loaded) Close() {
	l.client.Kill()
}

// Load starts the plugin binary at path and dispenses its agent. The agent
// must serve the expected role.
func Load(path string, args []string, role agent.Role, logger hclog.Logger) (*Loaded, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          map[string]hcplugin.Plugin{agentPluginName: &AgentPlugin{}},
		Cmd:              exec.Command(path, args...), // #nosec G204
		AllowedProtocols: []hcplugin.Protocol{hcplugin.ProtocolNetRPC},
		Logger:           logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start plugin %s: %w", path, err)
	}
	raw, err := rpcClient.Dispense(agentPluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense plugin %s: %w", path, err)
	}

	a, ok := raw.(agent.Agent)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not serve an agent", path)
	}
	if a.Role() != role {
		client.Kill()
		return nil, fmt.Errorf("plugin %s serves role %q, want %q", path, a.Role(), role)
	}
	return &Loaded{Agent: a, client: client}, nil
}
