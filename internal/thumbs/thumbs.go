// Package thumbs renders placeholder thumbnail cards for resources that
// carry no image of their own (PDFs, video clips). Cards are a deterministic
// per-resource gradient with the resource title overlaid when a font is
// available.
package thumbs

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
)

const (
	cardWidth  = 640
	cardHeight = 360
	jpegQual   = 85
)

type Generator struct {
	log      *logger.Logger
	fontFace font.Face
}

// NewGenerator loads the optional THUMBNAIL_FONT ttf. Without a font the
// generator still works, cards just carry no text.
func NewGenerator(baseLog *logger.Logger) *Generator {
	g := &Generator{log: baseLog.With("component", "ThumbnailGenerator")}
	fontPath := strings.TrimSpace(os.Getenv("THUMBNAIL_FONT"))
	if fontPath == "" {
		return g
	}
	face, err := loadFontFace(fontPath, 36)
	if err != nil {
		g.log.Warn("Could not load thumbnail font, rendering without text", "font", fontPath, "error", err)
		return g
	}
	g.fontFace = face
	return g
}

// Generate renders the JPEG card for one resource. Deterministic for a
// given seed so regeneration overwrites with identical content.
func (g *Generator) Generate(seed, title, kind string) ([]byte, error) {
	img := gradientCard(fmt.Sprintf("%s:%s", seed, kind))

	dc := gg.NewContext(cardWidth, cardHeight)
	dc.DrawImage(img, 0, 0)

	if g.fontFace != nil {
		dc.SetFontFace(g.fontFace)
		dc.SetColor(color.White)
		label := truncateLabel(title, 48)
		if label != "" {
			tw, th := dc.MeasureString(label)
			if tw > cardWidth-40 {
				label = truncateLabel(label, 32)
				tw, th = dc.MeasureString(label)
			}
			dc.DrawString(label, (cardWidth-tw)/2, (cardHeight+th)/2)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: jpegQual}); err != nil {
		return nil, fmt.Errorf("encode thumbnail jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func gradientCard(seed string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	c1, c2 := gradientColors(seed)
	for y := 0; y < cardHeight; y++ {
		t := float64(y) / float64(cardHeight-1)
		r := uint8(math.Round(float64(c1.R)*(1-t) + float64(c2.R)*t))
		gc := uint8(math.Round(float64(c1.G)*(1-t) + float64(c2.G)*t))
		b := uint8(math.Round(float64(c1.B)*(1-t) + float64(c2.B)*t))
		for x := 0; x < cardWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{R: r, G: gc, B: b, A: 255})
		}
	}
	return img
}

func gradientColors(seed string) (color.RGBA, color.RGBA) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()

	r1 := uint8(32 + (sum & 0x7F))
	g1 := uint8(24 + ((sum >> 7) & 0x7F))
	b1 := uint8(48 + ((sum >> 14) & 0x7F))

	r2 := uint8(24 + ((sum >> 5) & 0x7F))
	g2 := uint8(48 + ((sum >> 12) & 0x7F))
	b2 := uint8(32 + ((sum >> 19) & 0x7F))

	return color.RGBA{R: r1, G: g1, B: b1, A: 255}, color.RGBA{R: r2, G: g2, B: b2, A: 255}
}

func truncateLabel(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
