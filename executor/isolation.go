package executor

import "time"

// Isolator wraps a phase's argv so it runs inside an external sandbox.
// name is unique per workspace and phase; dir is the host workspace path.
// Release is called once the wrapped process has exited or been killed.
// StartupGrace is added to each phase's host deadline to cover the time the
// sandbox needs before the program itself starts.
type Isolator interface {
	Wrap(name, dir string, argv []string) []string
	Release(name string)
	StartupGrace() time.Duration
}

// hostIsolator runs commands directly on the host.
type hostIsolator struct{}

func (hostIsolator) Wrap(_, _ string, argv []string) []string { return argv }

func (hostIsolator) Release(string) {}

func (hostIsolator) StartupGrace() time.Duration { return 0 }
