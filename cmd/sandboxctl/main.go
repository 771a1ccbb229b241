// Command sandboxctl is a dev-only smoke-test binary: it runs one
// literal code snippet through sandbox.Executor and prints the
// resulting JSON. It exists so the worker subprocess re-exec path
// (sandbox.MaybeRunWorker) has something to re-exec, and so a
// maintainer can exercise one execute() call without embedding the
// package in a larger program. It is not part of the public API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/sandbox"
)

func main() {
	if ran, err := sandbox.MaybeRunWorker(); ran {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	code := flag.String("code", "return 1+1", "code snippet to execute")
	timeout := flag.Duration("timeout", 30*time.Second, "wall-clock timeout")
	flag.Parse()

	exec, err := sandbox.NewExecutor(nil, sandbox.WithTimeout(*timeout))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandboxctl: building executor:", err)
		os.Exit(1)
	}

	result := exec.Execute(context.Background(), *code, model.Context{}, model.NewToolManifest())
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandboxctl: marshaling result:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	if !result.Success {
		os.Exit(1)
	}
}
