package main

import "github.com/naka-gawa/gh-sync-forks/cmd"

func main() {
	cmd.Execute()
}
