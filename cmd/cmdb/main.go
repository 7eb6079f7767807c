// Command cmdb is the command-line interface of the cmdb configuration
// database.
package main

import "github.com/mesh-intelligence/cmdb/internal/cli"

func main() {
	cli.Execute()
}
