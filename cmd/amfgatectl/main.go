// amfgatectl -- CLI client for the amfgate daemon.
package main

import "github.com/hgminh-pk/amfgate/cmd/amfgatectl/commands"

func main() {
	commands.Execute()
}
