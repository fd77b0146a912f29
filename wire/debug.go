package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Describe renders a message in the format used by WAYLAND_DEBUG
// traces, such as
//
//	wl_surface#3.attach(wl_buffer#7, 0, 0)
func Describe(iface string, id uint32, method string, args []any) string {
	strs := make([]string, 0, len(args))
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			strs = append(strs, strconv.Quote(arg))
		case ObjectID:
			if arg == 0 {
				strs = append(strs, "nil")
				break
			}
			strs = append(strs, fmt.Sprintf("#%v", uint32(arg)))
		case NewID:
			strs = append(strs, fmt.Sprintf("new id #%v", uint32(arg)))
		case FD:
			strs = append(strs, fmt.Sprintf("fd %v", int(arg)))
		case []byte:
			strs = append(strs, fmt.Sprintf("array[%v]", len(arg)))
		default:
			strs = append(strs, fmt.Sprint(arg))
		}
	}

	if iface == "" {
		iface = "[unknown]"
	}
	return fmt.Sprintf("%v#%v.%v(%v)", iface, id, method, strings.Join(strs, ", "))
}
