// Package composer merges a generated video with a voice track, and
// optionally a background music bed, using ffmpeg.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Placeholders substituted after the template is split, so paths with
// spaces stay single arguments.
const (
	VideoPlaceholder  = "${VIDEO}"
	AudioPlaceholder  = "${AUDIO}"
	OffsetPlaceholder = "${AUDIO_OFFSET}"
	OutputPlaceholder = "${OUTPUT}"
	MusicPlaceholder  = "${MUSIC}"
	MixPlaceholder    = "${MUSIC_MIX}"
)

// DefaultMusicVolume is applied when Input.MusicVolume is zero
const DefaultMusicVolume = 0.3

// DefaultTemplate copies the video stream, re-encodes audio to AAC and
// stops at the shorter input.
const DefaultTemplate = "-y -i ${VIDEO} ${AUDIO_OFFSET} -i ${AUDIO} -c:v copy -c:a aac -b:a 192k -map 0:v:0 -map 1:a:0 -shortest ${OUTPUT}"

// DefaultMusicTemplate additionally mixes a lowered music track under the
// voice. The mix lasts as long as the voice.
const DefaultMusicTemplate = "-y -i ${VIDEO} ${AUDIO_OFFSET} -i ${AUDIO} -i ${MUSIC} -filter_complex ${MUSIC_MIX} -map 0:v:0 -map [aout] -c:v copy -c:a aac -b:a 192k -shortest ${OUTPUT}"

// Input describes one composition
type Input struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	AudioDelay float64 // seconds; shifts the voice track

	MusicPath   string
	MusicVolume float64 // 0..1
}

// Options configures a Composer
type Options struct {
	Bin           string
	Template      string
	MusicTemplate string
	Timeout       time.Duration
	MinFreeMem    int64
	MaxInput      int64
}

type execFunc func(ctx context.Context, bin string, args []string) ([]byte, error)

type Composer struct {
	bin           string
	template      string
	musicTemplate string
	timeout       time.Duration
	minFreeMem    uint64
	maxInput      int64
	exec          execFunc
}

func New(opts Options) *Composer {
	if opts.Bin == "" {
		opts.Bin = "ffmpeg"
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.MusicTemplate == "" {
		opts.MusicTemplate = DefaultMusicTemplate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxInput <= 0 {
		opts.MaxInput = 1 << 30
	}
	return &Composer{
		bin:           opts.Bin,
		template:      opts.Template,
		musicTemplate: opts.MusicTemplate,
		timeout:       opts.Timeout,
		minFreeMem:    uint64(opts.MinFreeMem),
		maxInput:      opts.MaxInput,
		exec:          runCommand,
	}
}

// Available reports whether the ffmpeg binary can be found
func (c *Composer) Available() bool {
	_, err := exec.LookPath(c.bin)
	return err == nil
}

// BuildArgs renders the command template for in
func (c *Composer) BuildArgs(in Input) ([]string, error) {
	if in.VideoPath == "" || in.AudioPath == "" || in.OutputPath == "" {
		return nil, fmt.Errorf("video, audio and output paths are required")
	}

	template, required := c.template, []string{in.VideoPath, in.AudioPath, in.OutputPath}
	mix := ""
	if in.MusicPath != "" {
		volume := in.MusicVolume
		if volume == 0 {
			volume = DefaultMusicVolume
		}
		if volume < 0 || volume > 1 {
			return nil, fmt.Errorf("music volume must be between 0 and 1, got %v", volume)
		}
		template = c.musicTemplate
		mix = fmt.Sprintf("[2:a]volume=%s[bg];[1:a][bg]amix=inputs=2:duration=first[aout]", strconv.FormatFloat(volume, 'f', -1, 64))
		required = append(required, in.MusicPath, mix)
	}

	tmpl, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("invalid compose template: %w", err)
	}

	args := make([]string, 0, len(tmpl)+2)
	for _, arg := range tmpl {
		switch arg {
		case OffsetPlaceholder:
			if in.AudioDelay != 0 {
				args = append(args, "-itsoffset", strconv.FormatFloat(in.AudioDelay, 'f', -1, 64))
			}
			continue
		case MixPlaceholder:
			args = append(args, mix)
			continue
		}
		arg = strings.Replace(arg, VideoPlaceholder, in.VideoPath, 1)
		arg = strings.Replace(arg, AudioPlaceholder, in.AudioPath, 1)
		arg = strings.Replace(arg, MusicPlaceholder, in.MusicPath, 1)
		arg = strings.Replace(arg, OutputPlaceholder, in.OutputPath, 1)
		args = append(args, arg)
	}

	for _, want := range required {
		if !contains(args, want) {
			return nil, fmt.Errorf("compose template is missing a placeholder for %s", want)
		}
	}
	return args, nil
}

// Compose fetches remote inputs, runs ffmpeg and leaves the result at
// in.OutputPath. The ffmpeg log is returned for diagnostics.
func (c *Composer) Compose(ctx context.Context, in Input) (string, error) {
	if err := c.checkResources(filepath.Dir(in.OutputPath)); err != nil {
		return "", fmt.Errorf("insufficient system resources: %w", err)
	}

	workDir, err := os.MkdirTemp("", "mediaflow_compose_")
	if err != nil {
		return "", fmt.Errorf("could not create temp directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	if in.VideoPath, err = c.localize(ctx, in.VideoPath, workDir, "video"); err != nil {
		return "", fmt.Errorf("failed to prepare video: %w", err)
	}
	if in.AudioPath, err = c.localize(ctx, in.AudioPath, workDir, "audio"); err != nil {
		return "", fmt.Errorf("failed to prepare audio: %w", err)
	}
	if in.MusicPath != "" {
		if in.MusicPath, err = c.localize(ctx, in.MusicPath, workDir, "music"); err != nil {
			return "", fmt.Errorf("failed to prepare music: %w", err)
		}
	}

	args, err := c.BuildArgs(in)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(in.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log.Printf("[Composer] Executing: %s %s", c.bin, strings.Join(args, " "))

	out, err := c.exec(runCtx, c.bin, args)
	if err != nil {
		os.Remove(in.OutputPath)
		if runCtx.Err() == context.DeadlineExceeded {
			return string(out), fmt.Errorf("ffmpeg timed out after %v", c.timeout)
		}
		return string(out), fmt.Errorf("ffmpeg execution failed: %w", err)
	}
	return string(out), nil
}

// localize returns a local path for src, downloading URLs into dir
func (c *Composer) localize(ctx context.Context, src, dir, name string) (string, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		if _, err := os.Stat(src); err != nil {
			return "", fmt.Errorf("could not open local input file: %w", err)
		}
		return src, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download file, status: %s", resp.Status)
	}

	dst := filepath.Join(dir, name+filepath.Ext(strings.SplitN(src, "?", 2)[0]))
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()

	written, err := io.Copy(f, &io.LimitedReader{R: resp.Body, N: c.maxInput + 1})
	if err != nil {
		return "", fmt.Errorf("failed to write downloaded file: %w", err)
	}
	if written > c.maxInput {
		return "", fmt.Errorf("input file size exceeds limit of %d bytes", c.maxInput)
	}
	return dst, nil
}

// checkResources refuses to start ffmpeg when memory or disk is short
func (c *Composer) checkResources(outDir string) error {
	if c.minFreeMem == 0 {
		return nil
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("[Composer] Warning: could not get memory usage: %v", err)
	} else if vm.Available < c.minFreeMem {
		return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, c.minFreeMem)
	}

	if outDir == "" {
		outDir = "."
	}
	d, err := disk.Usage(existingParent(outDir))
	if err != nil {
		log.Printf("[Composer] Warning: could not get disk usage for %s: %v", outDir, err)
	} else if d.Free < c.minFreeMem {
		return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, c.minFreeMem)
	}
	return nil
}

func existingParent(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func runCommand(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}
