package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/kalah-relay/internal/kalah"
)

const (
	cell    = 88
	margin  = 24
	header  = 40
	footer  = 24
	pitR    = 34
	storeRX = 30

	Width  = cell*8 + margin*2
	Height = header + cell*2 + margin*2 + footer
)

var (
	textColor  = color.NRGBA{R: 245, G: 233, B: 210, A: 255}
	labelColor = color.NRGBA{R: 190, G: 160, B: 120, A: 255}
	titleColor = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

// Options selects orientation and decorations. Viewer's pits are drawn on the
// bottom row with their store on the right, matching the text view.
type Options struct {
	Viewer kalah.Player
	// Active highlights the side to move; zero highlights nothing.
	Active kalah.Player
	Title  string
}

type bgKey struct{ top, bottom bool }

var (
	bgCache   = map[bgKey]*image.RGBA{}
	bgCacheMu sync.RWMutex
)

// RenderPNG draws b as a PNG.
func RenderPNG(ctx context.Context, b kalah.Board, opts Options) ([]byte, error) {
	viewer := opts.Viewer
	if !viewer.Valid() {
		viewer = kalah.Player1
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := bgKey{}
	if opts.Active.Valid() {
		key.bottom = opts.Active == viewer
		key.top = !key.bottom
	}
	bg, err := background(key)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(bg.Bounds())
	draw.Draw(img, img.Bounds(), bg, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Kalah"
	}
	if opts.Active.Valid() {
		title += "  -  " + opts.Active.String() + " to move"
	}
	drawText(d, title, Width/2, margin+header/2, titleColor)

	opp := viewer.Opponent()
	top, _ := kalah.PitRange(opp)
	bottom, _ := kalah.PitRange(viewer)
	for col := 0; col < kalah.PitsPerSide; col++ {
		cx := margin + cell*(col+1) + cell/2
		// opponent pits run right to left across the top row
		topIdx := top + kalah.PitsPerSide - 1 - col
		drawText(d, strconv.Itoa(b[topIdx]), cx, rowCenter(0), textColor)
		drawText(d, strconv.Itoa(b[bottom+col]), cx, rowCenter(1), textColor)
		drawText(d, strconv.Itoa(col), cx, rowCenter(1)+cell/2+footer/2, labelColor)
	}
	storesY := margin + header + cell
	drawText(d, strconv.Itoa(b[kalah.StoreIndex(opp)]), margin+cell/2, storesY, textColor)
	drawText(d, strconv.Itoa(b[kalah.StoreIndex(viewer)]), margin+cell*7+cell/2, storesY, textColor)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func rowCenter(row int) int { return margin + header + cell*row + cell/2 }

func drawText(d *font.Drawer, s string, cx, cy int, c color.Color) {
	d.Src = image.NewUniform(c)
	w := d.MeasureString(s).Ceil()
	m := d.Face.Metrics()
	h := (m.Ascent + m.Descent).Ceil()
	d.Dot = fixed.P(cx-w/2, cy+h/2-m.Descent.Ceil())
	d.DrawString(s)
}

// background rasterises the board SVG once per highlight combination.
func background(key bgKey) (*image.RGBA, error) {
	bgCacheMu.RLock()
	if img, ok := bgCache[key]; ok {
		bgCacheMu.RUnlock()
		return img, nil
	}
	bgCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(strings.NewReader(boardSVG(key)))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(Width), float64(Height))

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(Width, Height, img, img.Bounds())
	raster := rasterx.NewDasher(Width, Height, scanner)
	icon.Draw(raster, 1.0)

	bgCacheMu.Lock()
	bgCache[key] = img
	bgCacheMu.Unlock()
	return img, nil
}

func boardSVG(key bgKey) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" fill="#1c1f2e"/>`, Width, Height)
	fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" rx="28" ry="28" fill="#6b4423"/>`,
		margin, margin+header, cell*8, cell*2)

	storeH := cell*2 - 24
	for _, x := range []int{margin + 8, margin + cell*7 + 8} {
		fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" rx="%d" ry="%d" fill="#3b2412"/>`,
			x, margin+header+12, cell-16, storeH, storeRX, storeRX)
	}
	for row := 0; row < 2; row++ {
		hl := (row == 0 && key.top) || (row == 1 && key.bottom)
		stroke := ""
		if hl {
			stroke = ` stroke="#ffd54a" stroke-width="4"`
		}
		for col := 0; col < kalah.PitsPerSide; col++ {
			cx := margin + cell*(col+1) + cell/2
			fmt.Fprintf(&sb, `<circle cx="%d" cy="%d" r="%d" fill="#3b2412"%s/>`, cx, rowCenter(row), pitR, stroke)
		}
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}
