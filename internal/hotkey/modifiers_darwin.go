package hotkey

import "golang.design/x/hotkey"

const (
	modAlt = hotkey.ModOption
	modCmd = hotkey.ModCmd
)

var modifierSymbols = map[hotkey.Modifier]string{
	hotkey.ModCtrl:   "⌃",
	hotkey.ModShift:  "⇧",
	hotkey.ModOption: "⌥",
	hotkey.ModCmd:    "⌘",
}

// knownConflicts contains a list of known macOS shortcuts that might conflict
var knownConflicts = []ConflictInfo{
	{
		Name:        "Spotlight",
		Description: "macOS Spotlight search",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Alfred",
		Description: "Alfred launcher (common default)",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Raycast",
		Description: "Raycast launcher (common default)",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "IME Switch",
		Description: "Input method editor switch",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Force Quit",
		Description: "macOS Force Quit",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd, hotkey.ModOption},
		Key:         hotkey.KeyEscape,
	},
}
