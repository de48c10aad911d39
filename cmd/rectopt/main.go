// Command rectopt searches for the global minimum of a two-variable
// function by repeatedly splitting the most promising rectangle of its
// domain, either in one process or across a group of cooperating ranks.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
