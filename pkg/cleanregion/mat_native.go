//go:build !purego && !js

package cleanregion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                            { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat      { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int                    { return mat.m.Rows() }
func (mat Mat) Cols() int                    { return mat.m.Cols() }
func (mat Mat) Empty() bool                  { return mat.m.Empty() }
func (mat Mat) Clone() Mat                   { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()                      { mat.m.Close() }
func (mat Mat) Region(r image.Rectangle) Mat { return Mat{m: mat.m.Region(r)} }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// SetTo fills every element, including those of a Region view.
func (mat *Mat) SetTo(v float32) {
	mat.m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
}

func maxLoc(m Mat) (float32, image.Point) {
	_, maxVal, _, loc := gocv.MinMaxLoc(m.m)
	return maxVal, loc
}

func imWriteMat(path string, m Mat) error {
	if !gocv.IMWrite(path, m.m) {
		return fmt.Errorf("writing %s failed", path)
	}
	return nil
}
