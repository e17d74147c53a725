package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scraper/logger"
)

func TestMain(m *testing.M) {
	logger.InitConsole("error")
	os.Exit(m.Run())
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessCropsAndScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			src.Set(x, y, color.White)
		}
	}

	out, err := preprocess(encodePNG(t, src), image.Rect(50, 25, 90, 45))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40*scaleFactor, img.Bounds().Dx())
	assert.Equal(t, 20*scaleFactor, img.Bounds().Dy())
}

func TestPreprocessRejectsCropOutsideBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	_, err := preprocess(encodePNG(t, src), image.Rect(500, 500, 600, 600))
	assert.Error(t, err)
}

func TestPreprocessThresholdsToBlackAndWhite(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				src.SetGray(x, y, color.Gray{Y: 30})
			} else {
				src.SetGray(x, y, color.Gray{Y: 220})
			}
		}
	}

	out, err := preprocess(encodePNG(t, src), image.Rect(0, 0, 20, 20))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	for _, p := range gray.Pix {
		assert.Contains(t, []uint8{0, 255}, p)
	}
}

func TestStretchContrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.Pix = []uint8{100, 150}
	stretchContrast(img)
	assert.Equal(t, []uint8{0, 255}, img.Pix)
}

func TestStretchContrastFlatImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.Pix = []uint8{90, 90}
	stretchContrast(img)
	assert.Equal(t, []uint8{90, 90}, img.Pix, "uniform image left unchanged")
}

func TestRecognizeWithoutDriverSubstitutesFailure(t *testing.T) {
	r := NewRecognizer(DefaultConfig())
	assert.Equal(t, Failure, r.Cusip(nil, "https://example.test/img.png"))
	assert.Equal(t, Failure, r.Rating(nil, "https://example.test/img.png"))
}

func TestDefaultCropBoxes(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, image.Rect(910, 467, 1010, 527), cfg.CusipCrop.rect())
	assert.Equal(t, image.Rect(941, 491, 980, 504), cfg.RatingCrop.rect())
}
