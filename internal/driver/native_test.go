package driver

import (
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := whiteImage(w, h)
	img.Set(w/2, h/2, color.Black)

	path := filepath.Join(t.TempDir(), "label.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func deviceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lp0")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func TestNativeRenderAndSend(t *testing.T) {
	dev := deviceFile(t)
	job := Job{
		ImagePath:  writePNG(t, 696, 40),
		Label:      "62",
		Model:      "QL-700",
		PrinterURI: "file://" + dev,
		Options:    defaultOpts(),
	}

	require.NoError(t, (&Native{}).RenderAndSend(context.Background(), job))

	got, err := os.ReadFile(dev)
	require.NoError(t, err)
	require.Len(t, got, ql700Header+40*93+1)
	assert.Equal(t, byte(0x1A), got[len(got)-1])
}

func TestNativeErrors(t *testing.T) {
	dev := deviceFile(t)
	imgPath := writePNG(t, 696, 10)

	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o644))

	tests := []struct {
		name    string
		job     Job
		kind    Kind
		message string
	}{
		{
			name:    "unsupported label",
			job:     Job{ImagePath: imgPath, Label: "99", Model: "QL-700", PrinterURI: dev},
			kind:    KindLabel,
			message: `unsupported label size "99"`,
		},
		{
			name:    "unsupported model",
			job:     Job{ImagePath: imgPath, Label: "62", Model: "QL-9000", PrinterURI: dev},
			kind:    KindModel,
			message: "unsupported printer model",
		},
		{
			name:    "undecodable image",
			job:     Job{ImagePath: corrupt, Label: "62", Model: "QL-700", PrinterURI: dev},
			kind:    KindImage,
			message: "cannot identify image file",
		},
		{
			name:    "missing image",
			job:     Job{ImagePath: filepath.Join(t.TempDir(), "gone.png"), Label: "62", Model: "QL-700", PrinterURI: dev},
			kind:    KindImage,
			message: "open image",
		},
		{
			name:    "device gone",
			job:     Job{ImagePath: imgPath, Label: "62", Model: "QL-700", PrinterURI: "file:///nonexistent/lp0", Options: defaultOpts()},
			kind:    KindDevice,
			message: "open printer device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Native{}).RenderAndSend(context.Background(), tt.job)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "kind of %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNew(t *testing.T) {
	d, err := New("native")
	require.NoError(t, err)
	assert.IsType(t, &Native{}, d)

	d, err = New("brother_ql")
	require.NoError(t, err)
	assert.IsType(t, &BrotherQL{}, d)

	_, err = New("cups")
	assert.Error(t, err)
}

func TestLabelCatalogue(t *testing.T) {
	l, ok := LookupLabel("62")
	require.True(t, ok)
	assert.Equal(t, Endless, l.Form)
	assert.Equal(t, 696, l.DotsPrintable[0])

	l, ok = LookupLabel("d24")
	require.True(t, ok)
	assert.Equal(t, "round die-cut", l.Form.String())

	_, ok = LookupLabel("63")
	assert.False(t, ok)

	all := Labels()
	assert.Len(t, all, 22)
	all[0].Identifier = "mutated"
	_, ok = LookupLabel("12")
	assert.True(t, ok, "Labels must return a copy")

	assert.Contains(t, Models(), "QL-700")
}
