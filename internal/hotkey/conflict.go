package hotkey

import (
	"strings"

	"golang.design/x/hotkey"
)

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string
	Description string
	Modifiers   []hotkey.Modifier
	Key         hotkey.Key
}

// CheckConflicts checks if the given hotkey conflicts with known system shortcuts
func CheckConflicts(modifiers []hotkey.Modifier, key hotkey.Key) []ConflictInfo {
	var conflicts []ConflictInfo

	for _, known := range knownConflicts {
		if hotkeyMatches(modifiers, key, known.Modifiers, known.Key) {
			conflicts = append(conflicts, known)
		}
	}

	return conflicts
}

// SameBinding reports whether two configs would register the same key
// combination. The push-to-talk and conversation hotkeys must differ.
func SameBinding(a, b Config) bool {
	return hotkeyMatches(a.Modifiers, a.Key, b.Modifiers, b.Key)
}

// hotkeyMatches checks if two hotkey combinations are identical
func hotkeyMatches(mods1 []hotkey.Modifier, key1 hotkey.Key, mods2 []hotkey.Modifier, key2 hotkey.Key) bool {
	if key1 != key2 {
		return false
	}

	set1 := make(map[hotkey.Modifier]bool)
	set2 := make(map[hotkey.Modifier]bool)
	for _, mod := range mods1 {
		set1[mod] = true
	}
	for _, mod := range mods2 {
		set2[mod] = true
	}

	if len(set1) != len(set2) {
		return false
	}
	for mod := range set1 {
		if !set2[mod] {
			return false
		}
	}
	return true
}

// FormatHotkey returns a human-readable string representation of the hotkey
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	var b strings.Builder
	for _, mod := range modifiers {
		b.WriteString(modifierSymbols[mod])
	}
	b.WriteString(keyToString(key))
	return b.String()
}
