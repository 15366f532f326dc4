package audio

import (
	"errors"
	"fmt"
	"strings"
)

// deniedKeywords mark virtual, loopback and system-audio routes that present
// themselves as inputs. Matching is a case-insensitive substring test.
var deniedKeywords = []string{
	"loopback",
	"stereo mix",
	"system audio",
	"what u hear",
	"wave out",
	"speakers",
	"output",
	"soundflower",
	"blackhole",
	"virtual audio",
	"voicemeeter",
	"vb-audio",
	"system sound",
	"desktop audio",
	"monitor of",
	"virtual device",
	"audio router",
	"vac",
}

// DeniedKeywords returns a copy of the denylist.
func DeniedKeywords() []string {
	out := make([]string, len(deniedKeywords))
	copy(out, deniedKeywords)
	return out
}

// IsDenylisted reports whether a device label looks like a system-audio route.
func IsDenylisted(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range deniedKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// DeviceErrorKind classifies why no microphone could be used.
type DeviceErrorKind int

const (
	// NoDevice means no input device exists at all
	NoDevice DeviceErrorKind = iota
	// DenylistedOnly means every input device is a virtual or loopback route
	DenylistedOnly
	// PermissionDenied means the OS refused microphone access
	PermissionDenied
	// OpenFailed means the device exists but could not be opened
	OpenFailed
)

// String returns the string representation of the kind
func (k DeviceErrorKind) String() string {
	switch k {
	case NoDevice:
		return "no-device"
	case DenylistedOnly:
		return "denylisted-only"
	case PermissionDenied:
		return "permission-denied"
	case OpenFailed:
		return "open-failed"
	default:
		return "unknown"
	}
}

// DeviceError reports a microphone that could not be used. Fatal kinds abort
// the current voice session; it never terminates the app.
type DeviceError struct {
	Kind   DeviceErrorKind
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	switch e.Kind {
	case NoDevice:
		return "no microphone found"
	case DenylistedOnly:
		return "only system-audio or virtual input devices are available"
	case PermissionDenied:
		return "microphone permission denied"
	default:
		if e.Device != "" {
			return fmt.Sprintf("failed to open microphone %q: %v", e.Device, e.Err)
		}
		return fmt.Sprintf("failed to open microphone: %v", e.Err)
	}
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsDeviceError reports whether err is (or wraps) a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// Fatal reports whether the error leaves no usable microphone until the user
// acts. OpenFailed is transient and may be retried.
func (e *DeviceError) Fatal() bool {
	return e.Kind != OpenFailed
}

// IsFatalDeviceError reports whether err is (or wraps) a fatal DeviceError.
func IsFatalDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Fatal()
}

// SelectInputDevice picks the microphone to record from. The preferred device
// wins if it is allowed, then the system default, then the first allowed device.
func SelectInputDevice(devices []Device, preferredID int) (Device, error) {
	if len(devices) == 0 {
		return Device{}, &DeviceError{Kind: NoDevice}
	}

	var allowed []Device
	for _, d := range devices {
		if !IsDenylisted(d.Name) {
			allowed = append(allowed, d)
		}
	}
	if len(allowed) == 0 {
		return Device{}, &DeviceError{Kind: DenylistedOnly, Device: devices[0].Name}
	}

	if preferredID >= 0 {
		for _, d := range allowed {
			if d.ID == preferredID {
				return d, nil
			}
		}
	}
	for _, d := range allowed {
		if d.IsDefault {
			return d, nil
		}
	}
	return allowed[0], nil
}
