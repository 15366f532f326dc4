//go:build !darwin

package notification

func command(n *Notification) (string, []string) {
	urgency := "normal"
	if n.Type == TypeError {
		urgency = "critical"
	}
	return "notify-send", []string{"-a", n.Title, "-u", urgency, n.Title, n.Message}
}
