// Package palette computes dominant image colors in CIE Lab and compares
// them perceptually.
package palette

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"

	"museum-discovery/models"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultColors is the palette size extracted per image.
	DefaultColors = 5
	maxSamples    = 10000
	iterations    = 12
	maxImageBytes = 20 << 20
)

// Lab is a CIE Lab triple with L on the 0..100 scale.
type Lab struct {
	L, A, B float64
}

// FromHex parses a 6 digit hex color, with or without '#'.
func FromHex(hex string) (Lab, error) {
	c, err := colorful.Hex("#" + strings.TrimPrefix(hex, "#"))
	if err != nil {
		return Lab{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return toLab(c), nil
}

// Distance is the CIE76 delta E between two colors.
func Distance(x, y Lab) float64 {
	return math.Sqrt((x.L-y.L)*(x.L-y.L) + (x.A-y.A)*(x.A-y.A) + (x.B-y.B)*(x.B-y.B))
}

// Nearest returns the smallest distance between target and any palette entry.
func Nearest(colors []models.DominantColor, target Lab) (float64, bool) {
	best := math.Inf(1)
	for _, c := range colors {
		if d := Distance(Lab{c.L, c.A, c.B}, target); d < best {
			best = d
		}
	}
	return best, len(colors) > 0
}

func toLab(c colorful.Color) Lab {
	l, a, b := c.Lab()
	return Lab{L: l * 100, A: a * 100, B: b * 100}
}

func fromLab(v Lab) colorful.Color {
	return colorful.Lab(v.L/100, v.A/100, v.B/100)
}

// Extract clusters the pixels of img into at most k colors, ordered by
// coverage. Fully transparent pixels are ignored.
func Extract(img image.Image, k int) []models.DominantColor {
	if k <= 0 {
		k = DefaultColors
	}
	samples := sample(img)
	if len(samples) == 0 {
		return nil
	}
	if k > len(samples) {
		k = len(samples)
	}

	centers := seed(samples, k)
	assign := make([]int, len(samples))
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, s := range samples {
			best, bestD := 0, math.Inf(1)
			for j, c := range centers {
				if d := Distance(s, c); d < bestD {
					best, bestD = j, d
				}
			}
			if assign[i] != best {
				changed = true
				assign[i] = best
			}
		}
		sums := make([]Lab, k)
		counts := make([]int, k)
		for i, s := range samples {
			j := assign[i]
			sums[j].L += s.L
			sums[j].A += s.A
			sums[j].B += s.B
			counts[j]++
		}
		for j := range centers {
			if counts[j] > 0 {
				n := float64(counts[j])
				centers[j] = Lab{sums[j].L / n, sums[j].A / n, sums[j].B / n}
			}
		}
		if !changed && iter > 0 {
			break
		}
	}

	counts := make([]int, k)
	for _, j := range assign {
		counts[j]++
	}
	out := make([]models.DominantColor, 0, k)
	for j, c := range centers {
		if counts[j] == 0 {
			continue
		}
		out = append(out, models.DominantColor{
			L:       round(c.L),
			A:       round(c.A),
			B:       round(c.B),
			Hex:     fromLab(c).Clamped().Hex(),
			Percent: round(float64(counts[j]) * 100 / float64(len(samples))),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	return out
}

func sample(img image.Image) []Lab {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return nil
	}
	step := 1
	for total/(step*step) > maxSamples {
		step++
	}
	samples := make([]Lab, 0, total/(step*step)+1)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			px := img.At(x, y)
			if _, _, _, a := px.RGBA(); a < 0x8000 {
				continue
			}
			c, ok := colorful.MakeColor(px)
			if !ok {
				continue
			}
			samples = append(samples, toLab(c))
		}
	}
	return samples
}

// seed picks k initial centers at evenly spaced lightness quantiles so that
// extraction is deterministic.
func seed(samples []Lab, k int) []Lab {
	sorted := append([]Lab(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].L < sorted[j].L })
	centers := make([]Lab, k)
	for j := range centers {
		centers[j] = sorted[(2*j+1)*len(sorted)/(2*k)]
	}
	return centers
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

// Fetch downloads and decodes an image then extracts its palette.
func Fetch(ctx context.Context, client *http.Client, url string, k int) ([]models.DominantColor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return Extract(img, k), nil
}
