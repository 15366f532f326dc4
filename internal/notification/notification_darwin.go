package notification

import (
	"fmt"
	"strings"
)

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func command(n *Notification) (string, []string) {
	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		appleScriptEscaper.Replace(n.Message),
		appleScriptEscaper.Replace(n.Title),
	)
	return "osascript", []string{"-e", script}
}
