package stealth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// HumanConfig bounds the simulated behavior.
type HumanConfig struct {
	MinPause      time.Duration
	MaxPause      time.Duration
	MouseSteps    int
	ScrollBursts  int
	ScrollPixels  int
	ReversalOdds  float64
	TimingEnabled bool
}

func (c HumanConfig) withDefaults() HumanConfig {
	if c.MinPause <= 0 {
		c.MinPause = 200 * time.Millisecond
	}
	if c.MaxPause <= c.MinPause {
		c.MaxPause = c.MinPause + 1200*time.Millisecond
	}
	if c.MouseSteps <= 0 {
		c.MouseSteps = 24
	}
	if c.ScrollBursts <= 0 {
		c.ScrollBursts = 3
	}
	if c.ScrollPixels <= 0 {
		c.ScrollPixels = 400
	}
	if c.ReversalOdds <= 0 {
		c.ReversalOdds = 0.2
	}
	return c
}

type point struct{ x, y float64 }

// bezierPath samples a cubic Bézier curve from start to end with randomized
// control points plus per-step jitter, which is how real cursor traces look.
func bezierPath(start, end point, steps int) []point {
	c1 := point{
		x: start.x + (end.x-start.x)*rand.Float64(),
		y: start.y + (end.y-start.y)*rand.Float64(),
	}
	c2 := point{
		x: start.x + (end.x-start.x)*rand.Float64(),
		y: start.y + (end.y-start.y)*rand.Float64(),
	}
	path := make([]point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		u := 1 - t
		x := u*u*u*start.x + 3*u*u*t*c1.x + 3*u*t*t*c2.x + t*t*t*end.x
		y := u*u*u*start.y + 3*u*u*t*c1.y + 3*u*t*t*c2.y + t*t*t*end.y
		path = append(path, point{
			x: x + (rand.Float64()-0.5)*3,
			y: y + (rand.Float64()-0.5)*3,
		})
	}
	return path
}

// SimulateHuman issues randomized pauses, bounded mouse movement along a
// Bézier path, and scroll bursts with occasional reversal against the current
// page. It is best-effort: input dispatch failures are swallowed so a flaky
// page never fails the fetch.
func SimulateHuman(ctx context.Context, cfg HumanConfig, vp Viewport) error {
	cfg = cfg.withDefaults()

	if cfg.TimingEnabled {
		pause(ctx, randomPause(cfg))
	}

	start := point{
		x: float64(vp.Width) * (0.1 + rand.Float64()*0.3),
		y: float64(vp.Height) * (0.1 + rand.Float64()*0.3),
	}
	end := point{
		x: float64(vp.Width) * (0.4 + rand.Float64()*0.5),
		y: float64(vp.Height) * (0.4 + rand.Float64()*0.5),
	}
	for _, p := range bezierPath(start, end, cfg.MouseSteps) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = input.DispatchMouseEvent(input.MouseMoved, p.x, p.y).Do(ctx)
		pause(ctx, time.Duration(5+rand.IntN(15))*time.Millisecond)
	}

	for burst := 0; burst < cfg.ScrollBursts; burst++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delta := float64(cfg.ScrollPixels/2 + rand.IntN(cfg.ScrollPixels))
		if rand.Float64() < cfg.ReversalOdds {
			delta = -delta * 0.4
		}
		script := fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'});", int(math.Round(delta)))
		_ = chromedp.Evaluate(script, nil).Do(ctx)
		pause(ctx, randomPause(cfg)/2)
	}
	return nil
}

func randomPause(cfg HumanConfig) time.Duration {
	spread := cfg.MaxPause - cfg.MinPause
	return cfg.MinPause + time.Duration(rand.Int64N(int64(spread)))
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
