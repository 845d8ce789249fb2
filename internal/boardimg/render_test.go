package boardimg

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/kalah-relay/internal/kalah"
)

func TestRenderPNGDecodes(t *testing.T) {
	b := kalah.NewBoard(4)
	raw, err := RenderPNG(context.Background(), b, Options{Viewer: kalah.Player1, Active: kalah.Player1, Title: "m-1"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())
}

func TestRenderDiffersByViewerAndActive(t *testing.T) {
	b := kalah.Board{1, 2, 3, 4, 5, 6, 10, 7, 8, 9, 11, 12, 13, 20}
	ctx := context.Background()

	p1, err := RenderPNG(ctx, b, Options{Viewer: kalah.Player1})
	require.NoError(t, err)
	p2, err := RenderPNG(ctx, b, Options{Viewer: kalah.Player2})
	require.NoError(t, err)
	assert.False(t, bytes.Equal(p1, p2))

	again, err := RenderPNG(ctx, b, Options{Viewer: kalah.Player1})
	require.NoError(t, err)
	assert.Equal(t, p1, again, "rendering is deterministic")

	hl, err := RenderPNG(ctx, b, Options{Viewer: kalah.Player1, Active: kalah.Player2})
	require.NoError(t, err)
	assert.False(t, bytes.Equal(p1, hl))
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderPNG(ctx, kalah.NewBoard(4), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoardSVGHighlight(t *testing.T) {
	assert.NotContains(t, boardSVG(bgKey{}), "#ffd54a")
	assert.Contains(t, boardSVG(bgKey{bottom: true}), "#ffd54a")
}
