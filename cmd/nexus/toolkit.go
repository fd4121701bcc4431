package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/toolhost"
)

// agentToolAdapter lets the workspace's existing agent.Tool implementations
// (file and shell tools) serve as toolhost.Tool: Execute's *agent.ToolResult
// collapses to the Tool Host's (string, error) shape, and a panicking tool
// is never reached here since toolhost.Host.safeExecute recovers around it.
type agentToolAdapter struct {
	name     string
	readOnly bool
	inner    agent.Tool
}

func (a agentToolAdapter) Name() string     { return a.name }
func (a agentToolAdapter) IsReadOnly() bool { return a.readOnly }

func (a agentToolAdapter) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	result, err := a.inner.Execute(ctx, args)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return result.Content, fmt.Errorf("%s", result.Content)
	}
	return result.Content, nil
}

// registerWorkspaceTools wires the teacher's file and shell tool
// implementations into the host under the names the policy profiles
// allow/deny lists expect (fs_read/fs_write/fs_edit/bash_run).
func registerWorkspaceTools(host *toolhost.Host, workspace string) {
	filesCfg := files.Config{Workspace: workspace}
	execManager := exec.NewManager(workspace)

	host.Register(agentToolAdapter{name: "fs_read", readOnly: true, inner: files.NewReadTool(filesCfg)})
	host.Register(agentToolAdapter{name: "fs_write", readOnly: false, inner: files.NewWriteTool(filesCfg)})
	host.Register(agentToolAdapter{name: "fs_edit", readOnly: false, inner: files.NewEditTool(filesCfg)})
	host.Register(agentToolAdapter{name: "bash_run", readOnly: false, inner: exec.NewExecTool("bash_run", execManager)})
	host.Register(agentToolAdapter{name: "bash_process", readOnly: false, inner: exec.NewProcessTool(execManager)})
}
