// Package ocr recognizes the short strings (CUSIPs and ratings) that the
// target site renders as images. The composite connection's browser
// fetches the image, the screenshot is cropped and thresholded, and the
// tesseract binary reads the result. A circuit breaker stops the engine
// from driving the OCR browser once recognition keeps failing.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	serrors "scraper/errors"
	"scraper/logger"
	"scraper/utils/helpers"
)

// Failure is substituted into the row when recognition fails; the row
// itself is kept.
const Failure = "OCR Failure"

const (
	cusipWhitelist  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ratingWhitelist = "ABCNRWatl123+-"

	recognizeTimeout = 30 * time.Second
	threshold        = 200
	scaleFactor      = 3
)

// CropBox is a viewport-anchored crop region. The rendered image lands
// at a fixed position in the OCR browser's viewport; the exact
// coordinates depend on the viewport and are tunable.
type CropBox struct {
	CenterX int `koanf:"center_x"`
	CenterY int `koanf:"center_y"`
	Left    int `koanf:"left"`
	Up      int `koanf:"up"`
	Right   int `koanf:"right"`
	Down    int `koanf:"down"`
}

func (b CropBox) rect() image.Rectangle {
	return image.Rect(b.CenterX-b.Left, b.CenterY-b.Up, b.CenterX+b.Right, b.CenterY+b.Down)
}

// Config carries the tunable OCR parameters.
type Config struct {
	CusipCrop  CropBox `koanf:"cusip_crop"`
	RatingCrop CropBox `koanf:"rating_crop"`
	// DebugDir, when set, receives the processed crops for inspection.
	DebugDir string `koanf:"debug_dir"`
}

// DefaultConfig returns the crop boxes tuned for the default 1920x1080
// viewport.
func DefaultConfig() Config {
	return Config{
		CusipCrop:  CropBox{CenterX: 960, CenterY: 497, Left: 50, Up: 30, Right: 50, Down: 30},
		RatingCrop: CropBox{CenterX: 960, CenterY: 497, Left: 19, Up: 6, Right: 20, Down: 7},
	}
}

// Recognizer drives a browser session to image URLs and recognizes their
// contents.
type Recognizer struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// NewRecognizer builds a recognizer with its circuit breaker.
func NewRecognizer(cfg Config) *Recognizer {
	return &Recognizer{
		cfg: cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ocr",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("ocr breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Cusip recognizes a CUSIP image. On any failure the Failure literal is
// returned so the row survives.
func (r *Recognizer) Cusip(pg playwright.Page, link string) string {
	text, err := r.recognize(pg, link, r.cfg.CusipCrop, cusipWhitelist, "cusip")
	if err != nil {
		logger.Error("cusip ocr failed", zap.String("link", link), zap.Error(err))
		return Failure
	}
	return text
}

// Rating recognizes a rating image, applying the glyph fixups the
// rating font needs (t reads as +, l reads as 1).
func (r *Recognizer) Rating(pg playwright.Page, link string) string {
	text, err := r.recognize(pg, link, r.cfg.RatingCrop, ratingWhitelist, "rating")
	if err != nil {
		logger.Error("rating ocr failed", zap.String("link", link), zap.Error(err))
		return Failure
	}
	text = strings.ReplaceAll(text, "t", "+")
	text = strings.ReplaceAll(text, "l", "1")
	text = strings.ReplaceAll(text, "++", "+")
	return strings.TrimSpace(text)
}

// recognize runs the full leaf under the breaker: navigate, screenshot,
// preprocess, recognize.
func (r *Recognizer) recognize(pg playwright.Page, link string, box CropBox, whitelist, kind string) (string, error) {
	if pg == nil {
		return "", fmt.Errorf("%w: no ocr driver", serrors.ErrOCR)
	}
	out, err := r.breaker.Execute(func() (interface{}, error) {
		if _, err := pg.Goto(link); err != nil {
			return nil, fmt.Errorf("navigate %s: %w", link, err)
		}
		raw, err := pg.Screenshot()
		if err != nil {
			return nil, fmt.Errorf("screenshot: %w", err)
		}
		processed, err := preprocess(raw, box.rect())
		if err != nil {
			return nil, err
		}
		if r.cfg.DebugDir != "" {
			r.saveDebugImage(processed, kind)
		}
		return runTesseract(processed, whitelist)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", serrors.ErrOCR, err)
	}
	return strings.TrimSpace(out.(string)), nil
}

// preprocess crops the screenshot to the configured box, upscales it,
// grayscales, stretches the contrast, and thresholds to black and white.
func preprocess(raw []byte, crop image.Rectangle) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	crop = crop.Intersect(src.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("crop box outside screenshot bounds")
	}

	scaled := image.NewGray(image.Rect(0, 0, crop.Dx()*scaleFactor, crop.Dy()*scaleFactor))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, crop, xdraw.Over, nil)

	stretchContrast(scaled)
	for i, p := range scaled.Pix {
		if p > threshold {
			scaled.Pix[i] = 255
		} else {
			scaled.Pix[i] = 0
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}

// stretchContrast maps the image's luminance range onto the full 0-255
// interval before thresholding.
func stretchContrast(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range img.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if hi <= lo {
		return
	}
	span := int(hi) - int(lo)
	for i, p := range img.Pix {
		img.Pix[i] = uint8((int(p) - int(lo)) * 255 / span)
	}
}

// runTesseract feeds the processed image to the tesseract binary in
// single-line mode with the kind's character whitelist.
func runTesseract(processed []byte, whitelist string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), recognizeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tesseract", "stdin", "stdout",
		"--psm", "7", "-c", "tessedit_char_whitelist="+whitelist)
	cmd.Stdin = bytes.NewReader(processed)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// saveDebugImage writes a processed crop for offline inspection.
func (r *Recognizer) saveDebugImage(processed []byte, kind string) {
	dir := filepath.Join(r.cfg.DebugDir, kind)
	if err := helpers.CreateFolder(dir); err != nil {
		logger.Error("failed to create ocr debug directory", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s_processed_%s.png", kind, uuid.New().String()[:8])
	if err := os.WriteFile(filepath.Join(dir, name), processed, 0o644); err != nil {
		logger.Error("failed to save ocr debug image", zap.Error(err))
	}
}
