package client

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Command is a parsed CLI invocation.
type Command struct {
	Name string
	Args []string
}

// commandArity maps each command to its required positional argument count.
var commandArity = map[string]int{
	"register": 2, // email password
	"upload":   1, // local path
	"download": 1, // file id
	"delete":   1, // file id
	"share":    2, // file id, public|private
	"list":     0,
	"stats":    0,
}

// ParseArgs validates the command line into a Command.
func ParseArgs(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "no command provided"}
	}

	name := args[0]
	arity, ok := commandArity[name]
	if !ok {
		return nil, &ValidationError{Arg: name, Cause: "unknown command"}
	}

	rest := args[1:]
	if len(rest) != arity {
		return nil, &ValidationError{
			Arg:   name,
			Cause: fmt.Sprintf("expected %d argument(s), got %d", arity, len(rest)),
		}
	}

	if name == "upload" {
		p := filepath.Clean(rest[0])
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: rest[0], Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: rest[0], Cause: "is a directory, not a file"}
		}
		rest = []string{p}
	}

	if name == "share" {
		if rest[1] != "public" && rest[1] != "private" {
			return nil, &ValidationError{Arg: rest[1], Cause: "must be 'public' or 'private'"}
		}
	}

	return &Command{Name: name, Args: rest}, nil
}
