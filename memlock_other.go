//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package docvault

func lockMemory(b []byte) error   { return nil }
func unlockMemory(b []byte) error { return nil }
