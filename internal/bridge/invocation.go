package bridge

import (
	"github.com/testlooper/wetty/internal/config"
	"github.com/testlooper/wetty/internal/model"
)

// PortsFlag precedes the port list in an invocation.
const PortsFlag = "--ports"

// Invocation is the command line of a session's backing process.
type Invocation struct {
	Command string
	Args    []string
}

// BuildInvocation returns the command line for params. The argument order is
// what the entry point parses positionally and must not change:
//
//	entry-point config-path [repo-name] commit test [--ports ports]
func BuildInvocation(cfg *config.Terminal, p *model.Params) Invocation {
	args := []string{cfg.EntryPoint, cfg.ConfigPath}
	if cfg.RequireRepoName {
		args = append(args, p.RepoName)
	}
	args = append(args, p.Commit, p.Test)
	if p.HasPorts() {
		args = append(args, PortsFlag, p.Ports)
	}

	return Invocation{
		Command: cfg.Interpreter,
		Args:    args,
	}
}
