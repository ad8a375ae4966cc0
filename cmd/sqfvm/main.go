// Command sqfvm drives a Runtime from the shell. Its one subcommand,
// preprocess, resolves a virtual path, preprocesses the file and prints the
// expanded source. It does not run scripts: turning the preprocessed text
// into an instruction stream needs an external parser/lowerer, which is out
// of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/arclattice/sqfvm/internal/diagnostics"
	"github.com/arclattice/sqfvm/internal/runtime"
	"github.com/arclattice/sqfvm/internal/runtimecfg"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-config path] <preprocess> <virtual-path>\n", os.Args[0])
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "internal error: %v\n", r)
			os.Exit(1)
		}
	}()

	args := os.Args[1:]
	configPath := ""
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-config" || args[i] == "--config" {
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "-config requires a path")
				os.Exit(1)
			}
			configPath = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}

	if len(rest) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := runtimecfg.Default()
	if configPath != "" {
		loaded, err := runtimecfg.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := diagnostics.NewStdoutSink(diagnostics.Info)
	rt := runtime.New(cfg, logger)

	switch rest[0] {
	case "preprocess":
		text, err := rt.Preprocess(rest[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Print(text)
	default:
		usage()
		os.Exit(1)
	}
}
