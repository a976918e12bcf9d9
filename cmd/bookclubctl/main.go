package main

import "github.com/sakif/book-club/internal/cli"

// version is set via ldflags at release time.
var version = "dev"

func main() {
	cli.Execute(version)
}
