//go:build !windows

package segment

import "os"

// syncDir fsyncs dir so a rename inside it survives a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
