// Command elnmcp-gateway is a Model Context Protocol server that bridges
// AI clients to an Electronic Lab Notebook REST API.
package main

import "github.com/elnmcp/gateway/cmd/elnmcp-gateway/cmd"

func main() {
	cmd.Execute()
}
