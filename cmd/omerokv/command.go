package main

import "strings"

// Command is a command line after flags.  The first item is the command name.
// Arguments of the form "<key>=<value>" are key/value pairs, everything else is
// a positional argument.
type Command []string

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return strings.ToLower(cmd[0])
}

// Args returns the positional arguments after the command name.
func (cmd Command) Args() []string {
	var args []string
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			if !strings.Contains(arg, "=") {
				args = append(args, arg)
			}
		}
	}
	return args
}

// Argument returns the i-th positional argument, counting from 1, or "".
func (cmd Command) Argument(i int) string {
	args := cmd.Args()
	if i < 1 || i > len(args) {
		return ""
	}
	return args[i-1]
}

// KeyValueArgs returns the "<key>=<value>" arguments in order.
func (cmd Command) KeyValueArgs() []string {
	var kvs []string
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			if strings.Contains(arg, "=") {
				kvs = append(kvs, arg)
			}
		}
	}
	return kvs
}
