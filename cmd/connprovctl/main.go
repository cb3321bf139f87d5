// connprovctl sends echo requests to a connprovd instance and manages its
// configuration files.
//
// Usage:
//
//	connprovctl ping 127.0.0.1@6500 hello
//	connprovctl ping --type localipc "" hello
//	connprovctl config init connprovd.toml
package main

import (
	"fmt"
	"os"

	"github.com/danmuck/connprov/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "connprovctl: %v\n", err)
		os.Exit(1)
	}
}
