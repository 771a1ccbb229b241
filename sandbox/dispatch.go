package sandbox

import (
	"fmt"
	"os"

	"github.com/codeharbor/sandboxexec/worker"
)

// MaybeRunWorker inspects os.Args and, if this process was re-invoked
// as the isolated worker subcommand, runs the worker loop to
// completion over stdin/stdout/stderr and exits the process. Otherwise
// it returns immediately (false, nil) and the caller's normal CLI/
// embedding logic proceeds.
//
// Callers (typically cmd/sandboxctl's main, or an embedder's own main)
// must invoke this as close to the top of main as possible, before any
// flag parsing that might otherwise choke on the hidden sentinel
// argument:
//
//	func main() {
//		if ran, err := sandbox.MaybeRunWorker(); ran {
//			if err != nil {
//				fmt.Fprintln(os.Stderr, err)
//				os.Exit(1)
//			}
//			return
//		}
//		... normal CLI ...
//	}
func MaybeRunWorker() (ran bool, err error) {
	if len(os.Args) < 2 || os.Args[1] != workerSubcommandSentinel {
		return false, nil
	}
	if err := worker.Run(os.Stdin, os.Stdout, os.Stderr); err != nil {
		return true, fmt.Errorf("sandbox: worker exited with error: %w", err)
	}
	return true, nil
}
