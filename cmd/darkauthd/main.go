// Command darkauthd runs the identity provider: the "install" subcommand
// bootstraps a single-use install token, and "serve" starts the HTTP
// listener.
package main

import (
	"os"

	"github.com/darkauth/darkauth/cmd/darkauthd/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
