package state

import (
	"os"
	"time"

	"golang.org/x/term"
)

// newLocalEnv creates a new LocalEnv instance with default values.
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		start:       time.Now(),
	}
}
