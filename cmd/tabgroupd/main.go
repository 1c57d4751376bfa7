// tabgroupd owns the tab group registry and answers requests on a unix
// socket, and optionally over a websocket for tab-strip pages.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
