package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"viral-shorts-pipeline/types"
)

// Runner abstracts ffmpeg/ffprobe invocations so tests can fake them.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner shells out for real.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 400))
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// EnsureTools verifies the composition binaries are installed before the
// pipeline spends money on API calls.
func EnsureTools() error {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found in PATH (install ffmpeg to compose videos)", tool)
		}
	}
	return nil
}

// ProbeDuration returns a media file's duration in seconds.
func ProbeDuration(ctx context.Context, r Runner, path string) (float64, error) {
	out, err := r.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", filepath.Base(path), err)
	}
	return dur, nil
}

// normalizeFilter scales and pads any input to the platform frame.
func normalizeFilter(p types.Platform) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,fps=%d,format=yuv420p",
		p.Width, p.Height, p.Width, p.Height, p.FPS,
	)
}

// PrepareClip trims or loops a source clip to the wanted duration and
// normalizes it to the platform frame.
func PrepareClip(ctx context.Context, r Runner, src, dst string, wantSec float64, p types.Platform) error {
	srcDur, err := ProbeDuration(ctx, r, src)
	if err != nil {
		srcDur = wantSec
	}

	args := []string{"-y"}
	if srcDur < wantSec-0.05 {
		loops := int(wantSec/srcDur) + 1
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}
	args = append(args,
		"-i", src,
		"-t", formatSec(wantSec),
		"-vf", normalizeFilter(p),
		"-an",
		"-c:v", "libx264", "-preset", "veryfast",
		dst,
	)
	return r.Run(ctx, "ffmpeg", args...)
}

// StillToClip turns a still image into a clip with a slow Ken Burns drift
// so static frames do not read as frozen video.
func StillToClip(ctx context.Context, r Runner, img, dst string, durSec float64, p types.Platform) error {
	frames := int(durSec * float64(p.FPS))
	if frames < 1 {
		frames = p.FPS
	}
	filter := fmt.Sprintf(
		"scale=%d:-2,zoompan=z='min(zoom+0.0008,1.15)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d,format=yuv420p",
		p.Width*4, frames, p.Width, p.Height, p.FPS,
	)
	return r.Run(ctx, "ffmpeg", "-y",
		"-loop", "1",
		"-i", img,
		"-t", formatSec(durSec),
		"-vf", filter,
		"-an",
		"-c:v", "libx264", "-preset", "veryfast",
		dst,
	)
}

// BlackClip writes the deterministic placeholder clip: solid black frames
// with silent audio. The bitexact flags keep repeated runs byte-identical.
func BlackClip(ctx context.Context, r Runner, dst string, durSec float64, p types.Platform) error {
	return r.Run(ctx, "ffmpeg", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s", p.Width, p.Height, p.FPS, formatSec(durSec)),
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", formatSec(durSec),
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-fflags", "+bitexact", "-flags:v", "+bitexact", "-flags:a", "+bitexact",
		"-map_metadata", "-1",
		dst,
	)
}

// ComposeInput carries everything the final composition needs.
type ComposeInput struct {
	Clips        []string
	Narration    string
	MusicBed     string
	HookText     string
	OutPath      string
	WorkDir      string
	Platform     types.Platform
	MusicVolume  float64
	MusicFadeSec float64
}

// Compose concatenates the segment clips, reconciles video length against
// the narration, overlays the hook line and muxes the final file. A
// missing input aborts; a duration mismatch is padded or trimmed best
// effort.
func Compose(ctx context.Context, r Runner, in ComposeInput) error {
	if len(in.Clips) == 0 {
		return fmt.Errorf("compose: no clips to concatenate")
	}
	for _, path := range append([]string{in.Narration}, in.Clips...) {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("compose: missing input: %w", err)
		}
	}

	log.Info().Str("stage", "render").Int("clips", len(in.Clips)).Msg("composing final video")

	concatPath := filepath.Join(in.WorkDir, "concat.mp4")
	if err := concatClips(ctx, r, in.Clips, in.WorkDir, concatPath); err != nil {
		return err
	}

	video := concatPath
	videoDur, err := ProbeDuration(ctx, r, video)
	if err != nil {
		return err
	}
	audioDur, err := ProbeDuration(ctx, r, in.Narration)
	if err != nil {
		return err
	}
	if videoDur+0.25 < audioDur {
		padded := filepath.Join(in.WorkDir, "padded.mp4")
		if err := padTail(ctx, r, video, padded, audioDur-videoDur); err != nil {
			return err
		}
		video = padded
	}

	if in.HookText != "" {
		hooked := filepath.Join(in.WorkDir, "hooked.mp4")
		if err := overlayHook(ctx, r, video, hooked, in.HookText, in.Platform); err != nil {
			// The hook line is decoration; the run continues without it.
			log.Warn().Str("stage", "render").Err(err).Msg("hook overlay failed, continuing without it")
		} else {
			video = hooked
		}
	}

	audio := in.Narration
	if in.MusicBed != "" {
		mixed := filepath.Join(in.WorkDir, "mixed.m4a")
		if err := MixAudio(ctx, r, in.Narration, in.MusicBed, mixed, in.MusicVolume, in.MusicFadeSec, audioDur); err != nil {
			log.Warn().Str("stage", "render").Err(err).Msg("music mix failed, using narration only")
		} else {
			audio = mixed
		}
	}

	if err := mux(ctx, r, video, audio, in.OutPath); err != nil {
		return err
	}

	info, err := os.Stat(in.OutPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("compose: final output missing or empty at %s", in.OutPath)
	}
	log.Info().Str("stage", "render").Str("output", in.OutPath).Int64("bytes", info.Size()).Msg("final video ready")
	return nil
}

func concatClips(ctx context.Context, r Runner, clips []string, workDir, dst string) error {
	listPath := filepath.Join(workDir, "concat_list.txt")
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return r.Run(ctx, "ffmpeg", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-an",
		dst,
	)
}

// padTail extends the video by cloning the last frame, covering narration
// that runs past the visuals.
func padTail(ctx context.Context, r Runner, src, dst string, padSec float64) error {
	return r.Run(ctx, "ffmpeg", "-y",
		"-i", src,
		"-vf", fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", formatSec(padSec)),
		"-c:v", "libx264", "-preset", "veryfast",
		"-an",
		dst,
	)
}

func overlayHook(ctx context.Context, r Runner, src, dst, text string, p types.Platform) error {
	fontSize := p.Height / 18
	filter := fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=%d:borderw=3:bordercolor=black@0.8:x=(w-text_w)/2:y=h*0.12:enable='lt(t,3)'",
		escapeDrawtext(text), fontSize,
	)
	return r.Run(ctx, "ffmpeg", "-y",
		"-i", src,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast",
		"-an",
		dst,
	)
}

// MixAudio lays the music bed under the narration with fades and a fixed
// duck volume.
func MixAudio(ctx context.Context, r Runner, narration, music, dst string, musicVolume, fadeSec, durSec float64) error {
	if musicVolume <= 0 {
		musicVolume = 0.18
	}
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f,afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=2[out]",
		musicVolume, formatSec(fadeSec), formatSec(maxFloat(durSec-fadeSec, 0)), formatSec(fadeSec),
	)
	return r.Run(ctx, "ffmpeg", "-y",
		"-i", narration,
		"-i", music,
		"-filter_complex", filter,
		"-map", "[out]",
		"-c:a", "aac",
		dst,
	)
}

func mux(ctx context.Context, r Runner, video, audio, dst string) error {
	return r.Run(ctx, "ffmpeg", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		dst,
	)
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return s
}

func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
