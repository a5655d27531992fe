package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/scratch"
)

// thumbnailMaxDim bounds thumbnail width and height.
const thumbnailMaxDim = 256

// ImageAdapter probes image dimensions in-process and OCRs the pixels via
// tesseract. When an images dir is configured a thumbnail is saved there.
type ImageAdapter struct {
	opts Options
}

func (a *ImageAdapter) Extract(ctx context.Context, path string, _ *scratch.Manager) (Result, error) {
	var parts []string
	if format, w, h, err := probeImage(path); err == nil {
		parts = append(parts, fmt.Sprintf("%s %dx%d", format, w, h))
	}

	if !a.opts.OCRDisabled {
		if text, err := a.ocr(ctx, path); err == nil && text != "" {
			parts = append(parts, text)
		}
	}

	if a.opts.ImagesDir != "" {
		// Thumbnails are a side product; failures never fail the record.
		_ = saveThumbnail(path, a.opts.ImagesDir)
	}

	return Result{Text: flatten(strings.Join(parts, " "))}, nil
}

func (a *ImageAdapter) ocr(ctx context.Context, path string) (string, error) {
	langs := strings.Join(a.opts.OCRLanguages, "+")
	out, err := execx.Output(ctx, "tesseract", []string{path, "stdout", "-l", langs})
	if err != nil {
		return "", err
	}
	return flatten(string(out)), nil
}

func probeImage(path string) (string, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, 0, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}

func saveThumbnail(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > thumbnailMaxDim || h > thumbnailMaxDim {
		if w >= h {
			h = h * thumbnailMaxDim / w
			w = thumbnailMaxDim
		} else {
			w = w * thumbnailMaxDim / h
			h = thumbnailMaxDim
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s_%08x.jpg", flattenEntryName(base), uint32(xxhash.Sum64String(path)))
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer out.Close()

	return jpeg.Encode(out, dst, &jpeg.Options{Quality: 80})
}

// AudioAdapter collects stream metadata via ffprobe and, unless disabled,
// transcribes speech via pocketsphinx after an ffmpeg downmix to 16 kHz
// mono WAV.
type AudioAdapter struct {
	opts Options
}

func (a *AudioAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	parts := probeMedia(ctx, path)

	if !a.opts.AudioDisabled {
		if transcript, err := transcribe(ctx, path, sm); err == nil && transcript != "" {
			parts = append(parts, transcript)
		}
	}

	return Result{Text: flatten(strings.Join(parts, " "))}, nil
}

func transcribe(ctx context.Context, path string, sm *scratch.Manager) (string, error) {
	dir, err := sm.Acquire("transcode")
	if err != nil {
		return "", err
	}
	defer dir.Release()

	wav := filepath.Join(dir.Path(), "audio.wav")
	if _, err := execx.Run(ctx, "ffmpeg",
		[]string{"-y", "-v", "quiet", "-i", path, "-ar", "16000", "-ac", "1", "-f", "wav", wav}); err != nil {
		return "", err
	}

	out, err := execx.Output(ctx, "pocketsphinx_continuous", []string{"-infile", wav})
	if err != nil {
		return "", err
	}
	return flatten(string(out)), nil
}

// VideoAdapter collects stream metadata and expands a video into keyframe
// stills (for OCR re-entry) plus its audio track (for transcription
// re-entry).
type VideoAdapter struct {
	opts Options
}

func (a *VideoAdapter) Extract(ctx context.Context, path string, sm *scratch.Manager) (Result, error) {
	parts := probeMedia(ctx, path)
	text := flatten(strings.Join(parts, " "))

	if a.opts.OCRDisabled && a.opts.AudioDisabled {
		return Result{Text: text}, nil
	}

	dir, err := sm.Acquire(filepath.Base(path))
	if err != nil {
		return Result{Text: text}, nil
	}

	extracted := 0
	if !a.opts.OCRDisabled {
		if n := sampleKeyframes(ctx, path, dir.Path(), a.opts.MaxImages); n > 0 {
			extracted += n
		}
	}
	if !a.opts.AudioDisabled {
		wav := filepath.Join(dir.Path(), "audio.wav")
		if _, err := execx.Run(ctx, "ffmpeg",
			[]string{"-y", "-v", "quiet", "-i", path, "-vn", "-ar", "16000", "-ac", "1", "-f", "wav", wav}); err == nil {
			extracted++
		}
	}

	if extracted == 0 {
		dir.Release()
		return Result{Text: text}, nil
	}
	return Result{Text: text, Scratch: dir}, nil
}

func sampleKeyframes(ctx context.Context, path, dir string, maxFrames int) int {
	pattern := filepath.Join(dir, "frame_%03d.jpg")
	_, err := execx.Run(ctx, "ffmpeg",
		[]string{"-y", "-v", "quiet", "-i", path,
			"-vf", `select=eq(pict_type\,I)`, "-vsync", "vfr",
			"-frames:v", strconv.Itoa(maxFrames), pattern})
	if err != nil {
		return 0
	}
	frames, _ := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	return len(frames)
}

// probeMedia runs ffprobe and flattens duration, codec names, dimensions,
// and tag values into search terms. A missing tool degrades to no metadata.
func probeMedia(ctx context.Context, path string) []string {
	out, err := execx.Output(ctx, "ffprobe",
		[]string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path})
	if err != nil {
		return nil
	}

	var info struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
		Streams []struct {
			CodecType string            `json:"codec_type"`
			CodecName string            `json:"codec_name"`
			Width     int               `json:"width"`
			Height    int               `json:"height"`
			Tags      map[string]string `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil
	}

	var parts []string
	if info.Format.Duration != "" {
		parts = append(parts, info.Format.Duration+"s")
	}
	parts = append(parts, sortedTagValues(info.Format.Tags)...)
	for _, s := range info.Streams {
		if s.CodecName != "" {
			parts = append(parts, s.CodecName)
		}
		if s.CodecType == "video" && s.Width > 0 {
			parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height))
		}
		parts = append(parts, sortedTagValues(s.Tags)...)
	}
	return parts
}

func sortedTagValues(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			values = append(values, v)
		}
	}
	return values
}
