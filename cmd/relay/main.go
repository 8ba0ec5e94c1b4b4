// Command relay runs the message-routing daemon described in spec.md §6:
// "monitor" drives the live pipeline, "discover" enumerates the chat
// channels reachable from the configured session.
package main

import "os"

func main() {
	os.Exit(run())
}
