package hotkey

import (
	"strings"

	"golang.design/x/hotkey"
)

// keyNames maps the names stored in settings to key codes.
var keyNames = map[string]hotkey.Key{
	"Space":  hotkey.KeySpace,
	"A":      hotkey.KeyA,
	"B":      hotkey.KeyB,
	"C":      hotkey.KeyC,
	"D":      hotkey.KeyD,
	"E":      hotkey.KeyE,
	"F":      hotkey.KeyF,
	"G":      hotkey.KeyG,
	"H":      hotkey.KeyH,
	"I":      hotkey.KeyI,
	"J":      hotkey.KeyJ,
	"K":      hotkey.KeyK,
	"L":      hotkey.KeyL,
	"M":      hotkey.KeyM,
	"N":      hotkey.KeyN,
	"O":      hotkey.KeyO,
	"P":      hotkey.KeyP,
	"Q":      hotkey.KeyQ,
	"R":      hotkey.KeyR,
	"S":      hotkey.KeyS,
	"T":      hotkey.KeyT,
	"U":      hotkey.KeyU,
	"V":      hotkey.KeyV,
	"W":      hotkey.KeyW,
	"X":      hotkey.KeyX,
	"Y":      hotkey.KeyY,
	"Z":      hotkey.KeyZ,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"Escape": hotkey.KeyEscape,
	"Return": hotkey.KeyReturn,
	"Tab":    hotkey.KeyTab,
	"Delete": hotkey.KeyDelete,
}

// ParseKey resolves a settings key name. Letters are case-insensitive.
func ParseKey(name string) (hotkey.Key, bool) {
	// macOS IMEs can send a non-breaking space for the space bar.
	if name == " " || name == "\u00a0" {
		name = "Space"
	}
	if len(name) == 1 {
		name = strings.ToUpper(name)
	}
	key, ok := keyNames[name]
	return key, ok
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	if key == hotkey.KeyEscape {
		return "Esc"
	}
	for name, k := range keyNames {
		if k == key {
			return name
		}
	}
	return "Unknown"
}
