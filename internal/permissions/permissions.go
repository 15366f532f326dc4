// Package permissions checks the OS permissions voice capture and auto-paste
// depend on.
package permissions

import (
	"errors"

	"github.com/yok-tottii/banana4u-voice/internal/audio"
)

// PermissionStatus represents the status of a system permission
type PermissionStatus int

const (
	// PermissionNotDetermined means the user hasn't been asked yet
	PermissionNotDetermined PermissionStatus = 0
	// PermissionRestricted means the permission is restricted by parental controls
	PermissionRestricted PermissionStatus = 1
	// PermissionDenied means the user has explicitly denied the permission
	PermissionDenied PermissionStatus = 2
	// PermissionAuthorized means the user has authorized the permission
	PermissionAuthorized PermissionStatus = 3
)

// ErrMicrophoneDenied is wrapped in the DeviceError returned by a guarded driver.
var ErrMicrophoneDenied = errors.New("microphone access denied in system settings")

// PermissionStatus string representation
func (ps PermissionStatus) String() string {
	switch ps {
	case PermissionNotDetermined:
		return "NotDetermined"
	case PermissionRestricted:
		return "Restricted"
	case PermissionDenied:
		return "Denied"
	case PermissionAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Refused reports whether capture must not be attempted.
func (ps PermissionStatus) Refused() bool {
	return ps == PermissionDenied || ps == PermissionRestricted
}

// MicrophoneChecker reports the microphone permission.
type MicrophoneChecker interface {
	CheckMicrophonePermission() PermissionStatus
}

// PermissionChecker provides methods for checking system permissions
type PermissionChecker struct {
	microphone    func() PermissionStatus
	accessibility func() PermissionStatus
}

// NewPermissionChecker creates a checker backed by the platform APIs
func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{microphone: checkMicrophone, accessibility: checkAccessibility}
}

// CheckMicrophonePermission checks if the application has microphone access permission
func (pc *PermissionChecker) CheckMicrophonePermission() PermissionStatus {
	return pc.microphone()
}

// CheckAccessibilityPermission checks if the application may synthesize key
// presses for auto-paste
func (pc *PermissionChecker) CheckAccessibilityPermission() PermissionStatus {
	return pc.accessibility()
}

// IsMicrophoneAuthorized returns whether microphone permission is granted
func (pc *PermissionChecker) IsMicrophoneAuthorized() bool {
	return pc.CheckMicrophonePermission() == PermissionAuthorized
}

// IsAccessibilityAuthorized returns whether accessibility permission is granted
func (pc *PermissionChecker) IsAccessibilityAuthorized() bool {
	return pc.CheckAccessibilityPermission() == PermissionAuthorized
}

// RequestMicrophonePermission opens system settings for microphone permission
func (pc *PermissionChecker) RequestMicrophonePermission() error {
	return openSettings(microphoneSettingsURL)
}

// RequestAccessibilityPermission opens system settings for accessibility permission
func (pc *PermissionChecker) RequestAccessibilityPermission() error {
	return openSettings(accessibilitySettingsURL)
}

// CheckAllPermissions checks both microphone and accessibility permissions
func (pc *PermissionChecker) CheckAllPermissions() map[string]bool {
	return map[string]bool{
		"microphone":    pc.IsMicrophoneAuthorized(),
		"accessibility": pc.IsAccessibilityAuthorized(),
	}
}

// AreAllPermissionsGranted returns whether all required permissions are granted
func (pc *PermissionChecker) AreAllPermissionsGranted() bool {
	for _, granted := range pc.CheckAllPermissions() {
		if !granted {
			return false
		}
	}
	return true
}

// GetPermissionStatusMessage returns a human-readable message for a permission status
func GetPermissionStatusMessage(status PermissionStatus) string {
	switch status {
	case PermissionNotDetermined:
		return "Permission not yet determined"
	case PermissionRestricted:
		return "Permission restricted by parental controls"
	case PermissionDenied:
		return "Permission denied"
	case PermissionAuthorized:
		return "Permission authorized"
	default:
		return "Unknown permission status"
	}
}

// GuardDriver wraps d so that opening a device while microphone access is
// refused fails with a PermissionDenied DeviceError. Not-yet-determined is
// allowed through so the OS can prompt.
func GuardDriver(d audio.Driver, checker MicrophoneChecker) audio.Driver {
	return &guardedDriver{Driver: d, checker: checker}
}

type guardedDriver struct {
	audio.Driver
	checker MicrophoneChecker
}

func (g *guardedDriver) Open(config audio.Config) (audio.CaptureDevice, error) {
	if status := g.checker.CheckMicrophonePermission(); status.Refused() {
		return nil, &audio.DeviceError{Kind: audio.PermissionDenied, Err: ErrMicrophoneDenied}
	}
	return g.Driver.Open(config)
}
