package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
	"math"
)

type pointF struct{ X, Y float64 }

func fillRect(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, from, to image.Rectangle, clr color.Color) {
	start := pointF{X: float64(from.Min.X+from.Dx()/2), Y: float64(from.Min.Y+from.Dy()/2)}
	end := pointF{X: float64(to.Min.X+to.Dx()/2), Y: float64(to.Min.Y+to.Dy()/2)}
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	size := float64(from.Dx())
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - size*0.45
	if baseLength < size*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := size * 0.18
	headWidth := size * 0.32
	base := pointF{X: start.X + dirX*baseLength, Y: start.Y + dirY*baseLength}

	at := func(p pointF, w float64) (pointF, pointF) {
		return pointF{X: p.X - perpX*w, Y: p.Y - perpY*w}, pointF{X: p.X + perpX*w, Y: p.Y + perpY*w}
	}
	sl, sr := at(start, halfWidth)
	el, er := at(base, halfWidth)
	fillTriangle(img, sl, sr, er, clr)
	fillTriangle(img, sl, er, el, clr)

	hl, hr := at(base, headWidth/2)
	fillTriangle(img, end, hl, hr, clr)
}

func fillTriangle(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	if m := min(rect.Dx(), rect.Dy()) / 2; radius > m {
		radius = m
	}
	if radius <= 0 {
		fillRect(img, rect, clr)
		return
	}
	fillRect(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), clr)
	fillRect(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), clr)
	fillRect(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), clr)

	// quarter discs only, so corners are not blended twice
	corners := []struct {
		c      image.Point
		sx, sy int
	}{
		{image.Pt(rect.Min.X+radius, rect.Min.Y+radius), -1, -1},
		{image.Pt(rect.Max.X-radius-1, rect.Min.Y+radius), 1, -1},
		{image.Pt(rect.Min.X+radius, rect.Max.Y-radius-1), -1, 1},
		{image.Pt(rect.Max.X-radius-1, rect.Max.Y-radius-1), 1, 1},
	}
	r2 := radius * radius
	for _, k := range corners {
		for dy := 1; dy <= radius; dy++ {
			for dx := 1; dx <= radius; dx++ {
				if dx*dx+dy*dy <= r2 {
					blendPixel(img, k.c.X+k.sx*dx, k.c.Y+k.sy*dy, clr)
				}
			}
		}
	}
}

// blendPixel composites clr over the pixel (source-over).
func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	d := img.RGBAAt(x, y)
	inv := 0xffff - sa
	mix := func(s uint32, dst uint8) uint8 {
		return uint8((s + uint32(dst)*0x101*inv/0xffff) >> 8)
	}
	img.SetRGBA(x, y, color.RGBA{R: mix(sr, d.R), G: mix(sg, d.G), B: mix(sb, d.B), A: mix(sa, d.A)})
}
