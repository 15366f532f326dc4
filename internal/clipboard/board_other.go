//go:build !darwin

package clipboard

const pasteModifier = "ctrl"

func changeCount() int {
	return -1
}
