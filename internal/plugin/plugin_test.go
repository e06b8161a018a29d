package plugin

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/scribe/internal/agent"
)

type MockCritic struct {
	block chan struct{}
}

func (m *MockCritic) Name() string     { return "RemoteCritic" }
func (m *MockCritic) Role() agent.Role { return agent.RoleCritique }
func (m *MockCritic) Act(ctx context.Context, input string) (string, error) {
	if m.block != nil {
		<-m.block
	}
	if input == "fail" {
		return "", errors.New("cannot critique")
	}
	return "Critique: " + strings.ToUpper(input), nil
}

func newPipeClient(t *testing.T, impl agent.Agent) *AgentRPCClient {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("Plugin", &AgentRPCServer{Impl: impl}); err != nil {
		t.Fatalf("register: %v", err)
	}
	serverConn, clientConn := net.Pipe()
	go srv.ServeConn(serverConn)

	c := rpc.NewClient(clientConn)
	t.Cleanup(func() { c.Close() })
	return NewAgentRPCClient(c)
}

func TestAgentRPC(t *testing.T) {
	client := newPipeClient(t, &MockCritic{})

	if client.Name() != "RemoteCritic" {
		t.Errorf("Expected name RemoteCritic, got %q", client.Name())
	}
	if client.Role() != agent.RoleCritique {
		t.Errorf("Expected role critique, got %q", client.Role())
	}

	out, err := client.Act(context.Background(), "draft")
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if out != "Critique: DRAFT" {
		t.Errorf("unexpected output %q", out)
	}

	_, err = client.Act(context.Background(), "fail")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Expected ErrRemote, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot critique") {
		t.Errorf("remote error text lost: %v", err)
	}
}

func TestAgentRPC_Cancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	client := newPipeClient(t, &MockCritic{block: block})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Act(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestLoad_MissingBinary(t *testing.T) {
	if _, err := Load("/nonexistent/scribe-plugin", nil, agent.RoleCritique, nil); err == nil {
		t.Error("Expected error for missing plugin binary")
	}
}
