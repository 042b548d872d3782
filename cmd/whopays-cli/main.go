// Command whopays-cli administers the ledger directly against the
// configured backend, without going through the HTTP server.
package main

import (
	"context"
	"os"
)

func main() {
	app := &app{out: os.Stdout}
	err := newRootCmd(app).ExecuteContext(context.Background())
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}
