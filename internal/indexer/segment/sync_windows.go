//go:build windows

package segment

// syncDir is a no-op: directories cannot be opened for fsync on Windows and
// MoveFileEx, which os.Rename uses, already writes the rename through.
func syncDir(string) error {
	return nil
}
