//go:build linux || darwin

package pidfile

import (
	"os"
	"syscall"
)

func ownedByCurrentUser(fi os.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return true // can't determine on this platform; don't block startup over it
	}
	return int(st.Uid) == os.Geteuid()
}
