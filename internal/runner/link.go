package runner

import (
	"errors"
	"os"
)

// Link stages target into the working area as a symlink named linkpath,
// replacing any previous link, and returns linkpath. Staging by link
// avoids copying images and inputs into every job workarea.
func Link(target, linkpath string) (string, error) {
	err := os.Symlink(target, linkpath)
	if err == nil {
		return linkpath, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return "", err
	}
	if err := os.Remove(linkpath); err != nil {
		return "", err
	}
	if err := os.Symlink(target, linkpath); err != nil {
		return "", err
	}
	return linkpath, nil
}
