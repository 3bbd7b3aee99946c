package render

import "image"

// AlphaFor returns the alpha written to pure black pixels at transparency t.
func AlphaFor(t int) uint8 {
	return uint8(255 - t*255/100)
}

// ApplyTransparency lowers the alpha of every pixel whose RGB is exactly
// (0,0,0). Other pixels are left untouched. t must be in [0, 100]; 0 is a
// no-op.
func ApplyTransparency(img *image.NRGBA, t int) {
	if t <= 0 {
		return
	}
	alpha := AlphaFor(min(t, 100))

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+4 : x*4+4]
			if px[0] == 0 && px[1] == 0 && px[2] == 0 {
				px[3] = alpha
			}
		}
	}
}
