package hotkey

import "golang.design/x/hotkey"

const (
	modAlt = hotkey.ModAlt
	modCmd = hotkey.ModWin
)

var modifierSymbols = map[hotkey.Modifier]string{
	hotkey.ModCtrl:  "Ctrl+",
	hotkey.ModShift: "Shift+",
	hotkey.ModAlt:   "Alt+",
	hotkey.ModWin:   "Win+",
}

var knownConflicts = []ConflictInfo{
	{
		Name:        "Lock",
		Description: "Lock workstation",
		Modifiers:   []hotkey.Modifier{hotkey.ModWin},
		Key:         hotkey.KeyL,
	},
	{
		Name:        "IME Switch",
		Description: "Input language switch",
		Modifiers:   []hotkey.Modifier{hotkey.ModWin},
		Key:         hotkey.KeySpace,
	},
}
