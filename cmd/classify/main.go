// Command classify converts, checks and stores documents produced by the
// classify JSON format.
package main

import (
	"fmt"
	"os"

	"github.com/hengadev/classify"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "convert":
		err = runConvert(args, os.Stdin, os.Stdout)
	case "fmt":
		err = runFmt(args, os.Stdout)
	case "refs":
		err = runRefs(args, os.Stdout)
	case "push":
		err = runPush(args, os.Stdout)
	case "pull":
		err = runPull(args, os.Stdout)
	case "history":
		err = runHistory(args, os.Stdout)
	case "init":
		err = runInit(args, os.Stdout)
	case "version":
		fmt.Println(classify.FullVersionInfo())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`classify - object graph documents

Usage:
  classify <command> [options]

Commands:
  convert   Convert a document between JSON and YAML
  fmt       Reformat a JSON document
  refs      Check the reference markers of documents
  push      Save a document in the configured settings store
  pull      Load a document from the configured settings store
  history   List the revisions of a document (sqlite store only)
  init      Write a default classify.yaml
  version   Show version information
  help      Show this help message

Examples:
  classify convert config.json config.yaml
  classify refs graph.json
  classify push -config classify.yaml app.yaml
  classify pull app.yaml -

Use "classify <command> -h" for more information about a command.
`)
}
