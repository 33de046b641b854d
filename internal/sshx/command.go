package sshx

import "strings"

// Command is a structured remote command: a program and its arguments,
// rendered with single-quote shell quoting so interpolated values (project
// names, paths) can never break out of their argument position.
type Command struct {
	Program string
	Args    []string
	Sudo    bool
}

// Cmd builds a Command.
func Cmd(program string, args ...string) Command {
	return Command{Program: program, Args: args}
}

// WithSudo returns a copy of the command prefixed with sudo at render time.
func (c Command) WithSudo() Command {
	c.Sudo = true
	return c
}

// Render produces the shell line transmitted to the remote host.
func (c Command) Render() string {
	parts := make([]string, 0, len(c.Args)+2)
	if c.Sudo {
		parts = append(parts, "sudo")
	}
	parts = append(parts, quote(c.Program))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func (c Command) String() string { return c.Render() }

// Quote single-quotes a value for safe embedding in a shell line.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quote single-quotes a token unless it is already a safe bare word.
func quote(s string) string {
	if s != "" && isBareword(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isBareword(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '/' || r == ':' || r == '=' || r == ',' || r == '@':
		default:
			return false
		}
	}
	return true
}

// Script joins commands into one shell line with && so the remote segment
// fails on the first failing command.
func Script(cmds ...Command) Command {
	rendered := make([]string, len(cmds))
	for i, c := range cmds {
		rendered[i] = c.Render()
	}
	return Command{Program: "sh", Args: []string{"-c", strings.Join(rendered, " && ")}}
}
