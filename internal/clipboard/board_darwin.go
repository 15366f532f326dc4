package clipboard

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa
#import <Cocoa/Cocoa.h>

int get_pasteboard_change_count() {
    return (int)[[NSPasteboard generalPasteboard] changeCount];
}
*/
import "C"

const pasteModifier = "cmd"

func changeCount() int {
	return int(C.get_pasteboard_change_count())
}
