// ABOUTME: Entry point for the voicelink client
// ABOUTME: Hands control to the cobra command tree
package main

import "github.com/audiorouter/voicelink/internal/commands"

func main() {
	commands.Execute()
}
