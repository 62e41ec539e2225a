// Package bouquet composites flower sprites into a single fanned JPEG.
package bouquet

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Layout constants. Sprites are scaled to FlowerHeight and overlap their
// left neighbour by Overlap of its width.
const (
	FlowerHeight = 150
	Overlap      = 0.35

	padX        = 20
	padY        = 25
	maxRotation = 0.6
	maxDroop    = 20
	offsetX     = 10
	offsetY     = 2
	trim        = 10

	DefaultQuality = 80
	ContentType    = "image/jpeg"
)

// Image is an encoded bouquet.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// DataURL returns the image as a base64 data URL.
func (i *Image) DataURL() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Compositor builds bouquets from sprite locators.
type Compositor struct {
	loader  Loader
	quality int
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(c *Compositor) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// NewCompositor creates a Compositor reading sprites through loader.
func NewCompositor(loader Loader, opts ...Option) *Compositor {
	c := &Compositor{loader: loader, quality: DefaultQuality}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders the sprites behind locators left to right. It returns nil
// when locators is empty or when any sprite fails to load or decode; a
// partial bouquet is never produced.
func (c *Compositor) Compose(ctx context.Context, locators []string) *Image {
	if len(locators) == 0 {
		return nil
	}

	sprites, err := c.loadSprites(ctx, locators)
	if err != nil {
		slog.Warn("bouquet generation failed",
			"flowers", len(locators),
			"error", err,
		)
		return nil
	}

	img, err := c.render(sprites)
	if err != nil {
		slog.Warn("bouquet encoding failed", "error", err)
		return nil
	}
	return img
}

func (c *Compositor) loadSprites(ctx context.Context, locators []string) ([]*image.RGBA, error) {
	sprites := make([]*image.RGBA, len(locators))
	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range locators {
		g.Go(func() error {
			data, err := c.loader.Load(gctx, loc)
			if err != nil {
				return err
			}
			src, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", loc, err)
			}
			sprites[i] = scaleToHeight(src, FlowerHeight)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sprites, nil
}

// scaleToHeight resizes src to height h keeping its aspect ratio.
func scaleToHeight(src image.Image, h int) *image.RGBA {
	b := src.Bounds()
	w := 1
	if b.Dy() > 0 {
		w = max(1, int(math.Round(float64(h)*float64(b.Dx())/float64(b.Dy()))))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Layout returns the left edge of each sprite and the total strip width for
// sprites of the given widths.
func Layout(widths []int) (positions []float64, total float64) {
	if len(widths) == 0 {
		return nil, 0
	}
	positions = make([]float64, len(widths))
	for i := 1; i < len(widths); i++ {
		prev := float64(widths[i-1])
		positions[i] = positions[i-1] + prev - prev*Overlap
	}
	last := len(widths) - 1
	return positions, positions[last] + float64(widths[last])
}

// CanvasSize returns the padded canvas and the final, trimmed image size for
// a strip of the given total width. Fractional widths are truncated.
func CanvasSize(total float64) (canvas, final image.Point) {
	canvas = image.Pt(int(total+padX), FlowerHeight+padY)
	final = image.Pt(canvas.X, max(1, canvas.Y-2*trim))
	return canvas, final
}

func (c *Compositor) render(sprites []*image.RGBA) (*Image, error) {
	widths := make([]int, len(sprites))
	for i, s := range sprites {
		widths[i] = s.Bounds().Dx()
	}
	positions, total := Layout(widths)
	canvasSize, finalSize := CanvasSize(total)

	canvas := image.NewRGBA(image.Rectangle{Max: canvasSize})
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, sprite := range sprites {
		draw.BiLinear.Transform(canvas, fanTransform(positions[i], float64(widths[i]), total), sprite, sprite.Bounds(), draw.Over, nil)
	}

	final := image.NewRGBA(image.Rectangle{Max: finalSize})
	draw.Draw(final, final.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(final, final.Bounds(), canvas, image.Pt(0, trim), draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, err
	}

	return &Image{
		Data:        buf.Bytes(),
		ContentType: ContentType,
		Width:       finalSize.X,
		Height:      finalSize.Y,
	}, nil
}

// fanTransform maps sprite space onto the canvas: the sprite is centred on
// its strip slot, rotated in proportion to its distance from the middle and
// pushed down by the same proportion.
func fanTransform(pos, w, total float64) f64.Aff3 {
	cx := pos + w/2
	norm := 0.0
	if total > 0 {
		norm = (cx - total/2) / total
	}
	rot := norm * maxRotation
	dy := math.Abs(norm) * maxDroop

	tx := cx + offsetX
	ty := FlowerHeight/2 + dy + offsetY
	hx, hy := w/2, float64(FlowerHeight)/2

	cos, sin := math.Cos(rot), math.Sin(rot)
	return f64.Aff3{
		cos, -sin, tx - cos*hx + sin*hy,
		sin, cos, ty - sin*hx - cos*hy,
	}
}
