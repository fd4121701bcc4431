package policy

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrForbiddenShellConstruct is returned when a bash_run command contains a
// construct the policy refuses to execute (chaining, substitution,
// redirection, backgrounding).
type ForbiddenShellConstructError struct {
	Reason string
}

func (e *ForbiddenShellConstructError) Error() string {
	return "policy: forbidden shell construct: " + e.Reason
}

// CheckShellCommand parses cmd with a POSIX/bash grammar and rejects it if
// the resulting syntax tree contains command chaining, command/process
// substitution, here-strings, or file redirection outside quoted literals.
// Pipes and redirection operators embedded in quoted strings are permitted.
//
// If the parser itself fails (syntax error, or any parse error at all), the
// analysis fails closed: it falls back to a conservative substring scan that
// rejects the same construct classes.
func CheckShellCommand(cmd string) error {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return checkShellCommandFallback(cmd)
	}

	if len(file.Stmts) > 1 {
		return &ForbiddenShellConstructError{Reason: "multiple top-level statements"}
	}

	var forbidden *ForbiddenShellConstructError
	syntax.Walk(file, func(node syntax.Node) bool {
		if forbidden != nil {
			return false
		}
		switch n := node.(type) {
		case *syntax.BinaryCmd:
			switch n.Op {
			case syntax.AndStmt, syntax.OrStmt:
				forbidden = &ForbiddenShellConstructError{Reason: "command chaining (&&/||)"}
				return false
			}
		case *syntax.CmdSubst:
			forbidden = &ForbiddenShellConstructError{Reason: "command substitution"}
			return false
		case *syntax.ProcSubst:
			forbidden = &ForbiddenShellConstructError{Reason: "process substitution"}
			return false
		case *syntax.Stmt:
			if n.Background {
				forbidden = &ForbiddenShellConstructError{Reason: "backgrounding (&)"}
				return false
			}
		case *syntax.Redirect:
			switch n.Op {
			case syntax.RdrOut, syntax.AppOut, syntax.RdrIn, syntax.RdrInOut,
				syntax.DplOut, syntax.DplIn, syntax.ClbOut, syntax.Hdoc, syntax.DashHdoc:
				forbidden = &ForbiddenShellConstructError{Reason: "file or heredoc redirection"}
				return false
			case syntax.WordHdoc:
				forbidden = &ForbiddenShellConstructError{Reason: "here-string redirection"}
				return false
			}
		}
		return true
	})
	if forbidden != nil {
		return forbidden
	}

	// A statement with a semicolon separator parses as two sibling Stmts in
	// file.Stmts even for what looks like one line; already rejected above
	// via len(file.Stmts) > 1. List nodes (e.g. "a; b" on one physical line
	// parsed together) are walked for completeness.
	var listForbidden *ForbiddenShellConstructError
	syntax.Walk(file, func(node syntax.Node) bool {
		if _, ok := node.(*syntax.Block); ok {
			listForbidden = &ForbiddenShellConstructError{Reason: "grouped command list"}
			return false
		}
		return listForbidden == nil
	})
	if listForbidden != nil {
		return listForbidden
	}

	return nil
}

// checkShellCommandFallback is the fail-closed substring scan used when the
// shell grammar cannot parse the command at all.
func checkShellCommandFallback(cmd string) error {
	forbiddenSubstrings := []string{
		"\n", "\r", ";", "&&", "||", "`", "$(", "<(", ">(", "<<<",
	}
	for _, sub := range forbiddenSubstrings {
		if strings.Contains(cmd, sub) {
			return &ForbiddenShellConstructError{Reason: "forbidden construct (fallback scan): " + sub}
		}
	}
	if hasBareTrailingAmpersand(cmd) {
		return &ForbiddenShellConstructError{Reason: "backgrounding (&) (fallback scan)"}
	}
	if hasBareRedirection(cmd) {
		return &ForbiddenShellConstructError{Reason: "file redirection (fallback scan)"}
	}
	return nil
}

func hasBareTrailingAmpersand(cmd string) bool {
	trimmed := strings.TrimRight(cmd, " \t")
	return strings.HasSuffix(trimmed, "&") && !strings.HasSuffix(trimmed, "&&")
}

// hasBareRedirection scans for an unquoted '>' or '<' outside single or
// double quotes, tracking quote state across the string in one pass.
func hasBareRedirection(cmd string) bool {
	inSingle, inDouble := false, false
	for i := 0; i < len(cmd); i++ {
		switch cmd[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '>', '<':
			if !inSingle && !inDouble {
				return true
			}
		}
	}
	return false
}
