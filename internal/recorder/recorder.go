// Package recorder archives the rendered stream to disk and assembles the
// archived frames of a day into a single animation.
package recorder

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/crowdplay/internal/stream"
)

const dateLayout = "2006-01-02"

// Recorder is a stream consumer writing every 2nd frame as a PNG under
// <dir>/<date>/<seq> frame.png. A nil pause gate records unconditionally; an
// empty directory disables the recorder entirely.
type Recorder struct {
	dir    string
	paused func() bool
	now    func() time.Time

	mu    sync.Mutex
	date  string
	seq   int
	count int
}

func New(dir string, paused func() bool) *Recorder {
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Recorder{dir: dir, paused: paused, now: time.Now}
}

// AcceptFrame archives the frame. Frames arriving while the session is
// paused are skipped, as is every other frame to halve the archive size.
func (r *Recorder) AcceptFrame(frame *image.RGBA) {
	if r.dir == "" || r.paused() {
		return
	}

	r.mu.Lock()
	r.count++
	if r.count%2 != 0 {
		r.mu.Unlock()
		return
	}
	date := r.now().Format(dateLayout)
	if date != r.date {
		r.date = date
		r.seq = 0
	}
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if err := r.write(date, seq, frame); err != nil {
		log.Printf("recorder: writing frame: %v", err)
	}
}

// AcceptBatch is a no-op; the recorder archives raw frames, not GIF batches.
func (r *Recorder) AcceptBatch([]byte) {}

func (r *Recorder) write(date string, seq int, frame *image.RGBA) error {
	dir := filepath.Join(r.dir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d frame.png", seq))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CreateVideo assembles the archived frames of one day, in sequence order,
// into an animated GIF next to them. It returns the path of the animation.
func CreateVideo(dir, date string, playbackDelay time.Duration) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("recording directory not configured")
	}
	dayDir := filepath.Join(dir, date)
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dayDir, err)
	}

	type numbered struct {
		seq  int
		name string
	}
	var frames []numbered
	for _, e := range entries {
		seqStr, ok := strings.CutSuffix(e.Name(), " frame.png")
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}
		frames = append(frames, numbered{seq: seq, name: e.Name()})
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames recorded for %s", date)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].seq < frames[j].seq })

	batch := stream.NewBatch(playbackDelay)
	for _, fr := range frames {
		img, err := readPNG(filepath.Join(dayDir, fr.name))
		if err != nil {
			return "", fmt.Errorf("reading frame %s: %w", fr.name, err)
		}
		batch.Append(img)
	}

	blob, err := batch.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding video: %w", err)
	}
	out := filepath.Join(dayDir, "video.gif")
	if err := os.WriteFile(out, blob, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func readPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	for y := rgba.Rect.Min.Y; y < rgba.Rect.Max.Y; y++ {
		for x := rgba.Rect.Min.X; x < rgba.Rect.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, nil
}
