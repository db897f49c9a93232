package engine

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// conflictCopyPath derives the sibling path that receives the remote
// version of a conflicted file: "notes.txt" becomes
// "notes (conflict 2026-08-30).txt". When that name is taken a
// counter is appended.
func conflictCopyPath(root, rel string, t time.Time) string {
	dir := path.Dir(rel)
	base := path.Base(rel)
	ext := path.Ext(base)
	stem := base[:len(base)-len(ext)]
	date := t.Format("2006-01-02")

	for n := 0; ; n++ {
		name := fmt.Sprintf("%s (conflict %s)%s", stem, date, ext)
		if n > 0 {
			name = fmt.Sprintf("%s (conflict %s %d)%s", stem, date, n+1, ext)
		}
		candidate := name
		if dir != "." {
			candidate = dir + "/" + name
		}
		if _, err := os.Lstat(filepath.Join(root, filepath.FromSlash(candidate))); os.IsNotExist(err) {
			return candidate
		}
	}
}
