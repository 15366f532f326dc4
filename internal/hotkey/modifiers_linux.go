package hotkey

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 on common layouts.
const (
	modAlt = hotkey.Mod1
	modCmd = hotkey.Mod4
)

var modifierSymbols = map[hotkey.Modifier]string{
	hotkey.ModCtrl:  "Ctrl+",
	hotkey.ModShift: "Shift+",
	hotkey.Mod1:     "Alt+",
	hotkey.Mod4:     "Super+",
}

var knownConflicts = []ConflictInfo{
	{
		Name:        "Terminal",
		Description: "Open terminal (GNOME, Ubuntu)",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.Mod1},
		Key:         hotkey.KeyT,
	},
	{
		Name:        "Lock Screen",
		Description: "Lock screen (GNOME)",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.Mod1},
		Key:         hotkey.KeyL,
	},
	{
		Name:        "IME Switch",
		Description: "Input source switch (GNOME)",
		Modifiers:   []hotkey.Modifier{hotkey.Mod4},
		Key:         hotkey.KeySpace,
	},
}
