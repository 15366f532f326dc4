//go:build !darwin

package permissions

import "errors"

const (
	microphoneSettingsURL    = ""
	accessibilitySettingsURL = ""
)

// Other platforms gate microphone access at the audio server; a failed open
// surfaces as an audio.DeviceError instead.
func checkMicrophone() PermissionStatus {
	return PermissionAuthorized
}

func checkAccessibility() PermissionStatus {
	return PermissionAuthorized
}

func openSettings(string) error {
	return errors.New("permission settings are not available on this platform")
}
