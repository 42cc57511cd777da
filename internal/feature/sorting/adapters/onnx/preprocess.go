package onnx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// decode turns upload bytes into an image.
func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// toTensor stretches img to size x size and lays it out as planar RGB
// (CHW) in [0, 1]. Box coordinates produced on this input map back to the
// source image by dividing by size.
func toTensor(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	b := resized.Bounds()
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			data[i] = float32(r) / 65535.0
			data[plane+i] = float32(g) / 65535.0
			data[2*plane+i] = float32(bl) / 65535.0
		}
	}
	return data
}
