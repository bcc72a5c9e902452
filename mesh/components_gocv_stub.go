//go:build !gocv

package mesh

import "fmt"

// NewGocvLabeler reports that the OpenCV labeler is not compiled in.
func NewGocvLabeler() (ComponentLabeler, error) {
	return nil, fmt.Errorf("opencv labeler not enabled: rebuild with -tags=gocv")
}
