package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"voxline/pkg/audioconv"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id, from, to int
}

// Ducker turns down the playback streams of other applications while the
// microphone is open, so music or video does not end up in the take.
// Streams whose application.name is in selfNames are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string
	original  map[int]int // sink-input id -> volume %
	factor    float64
	minVolume int
	fadeTime  time.Duration
}

func NewDucker(selfNames []string, factor float64, minVolume int, fadeTime time.Duration) *Ducker {
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		original:  make(map[int]int),
		factor:    factor,
		minVolume: clampVolume(minVolume),
		fadeTime:  fadeTime,
	}
}

// Duck scales every foreign stream to factor of its volume, never below
// minVolume. Calling it while already ducked is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade

	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * d.factor))
		if to < d.minVolume {
			to = d.minVolume
		}
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: clampVolume(to)})
	}

	d.active = true
	return runFades(ctx, fades, d.fadeTime)
}

// Restore brings ducked streams back to the volume they had before Duck.
// Streams that appeared in the meantime are not touched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}
	defer func() {
		d.original = make(map[int]int)
		d.active = false
	}()

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	return runFades(ctx, fades, d.fadeTime)
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

// DuckingCapturer ducks other streams around each capture. Ducking failures
// are logged and never fail the capture.
type DuckingCapturer struct {
	Capturer
	Ducker *Ducker
}

func (c DuckingCapturer) Capture(ctx context.Context, device int, duration time.Duration, sampleRate int) (audioconv.Buffer, error) {
	if err := c.Ducker.Duck(ctx); err != nil {
		log.Warn("Failed to duck other streams", "err", err)
	}
	defer func() {
		// restore even when ctx was cancelled mid-take
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Ducker.Restore(rctx); err != nil {
			log.Warn("Failed to restore other streams", "err", err)
		}
	}()

	return c.Capturer.Capture(ctx, device, duration, sampleRate)
}

func runFades(ctx context.Context, fades []fade, duration time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := int(duration / minStep)
	if steps < 1 {
		steps = 1
	}
	stepDur := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := setSinkInputVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

// parseSinkInputs reads the "Sink Input #N" blocks printed by pactl.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name ="); ok && s.AppName == "" {
				s.AppName = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxVolume {
		return maxVolume
	}
	return v
}
