// Command usergrid edits the user grid of a running usergrid-server from the
// terminal.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
