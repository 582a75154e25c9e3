//go:build !cgo

package design

import "errors"

// errKuzuUnavailable is returned when the binary was built without cgo.
var errKuzuUnavailable = errors.New("design: kuzu store requires a cgo build")

func openKuzu(string) (Store, error) {
	return nil, errKuzuUnavailable
}
