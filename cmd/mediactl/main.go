// Command mediactl drives the media pipeline against a running staff backend.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/gateway"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/orchestrator"
)

const usage = `usage: mediactl <command> [flags]

commands:
  run       create, approve, voice + video, optional compose
  create    draft a content task
  approve   approve a task
  voice     synthesize speech for a task
  video     generate a video from a task or uploaded audio
  compose   merge a task's video with its voice track
  upload    upload an image or audio file

run "mediactl <command> --help" for command flags`

type cli struct {
	fs   *pflag.FlagSet
	orch *orchestrator.Orchestrator
	gw   *gateway.Client
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
	fs.String("url", "", "backend base URL")
	fs.String("token", "", "bearer credential")
	fs.Duration("poll-interval", 0, "status poll interval")
	fs.Int("max-attempts", 0, "status polls before giving up")
	fs.Bool("auto-approve", false, "approve tasks that are still under review")
	bindFlag(fs, "client.base_url", "url")
	bindFlag(fs, "client.token", "token")
	bindFlag(fs, "client.poll_interval", "poll-interval")
	bindFlag(fs, "client.max_attempts", "max-attempts")
	bindFlag(fs, "client.auto_approve", "auto-approve")

	c := &cli{fs: fs}
	run, ok := c.commands()[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	c.register(cmd)

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	c.gw = gateway.New(&cfg.Client)
	c.orch = orchestrator.New(c.gw, orchestrator.Options{
		PollInterval: cfg.Client.PollInterval,
		MaxAttempts:  cfg.Client.MaxAttempts,
		AutoApprove:  cfg.Client.AutoApprove,
	})
	c.orch.ObserveStatus(orchestrator.SinkFuncs{
		Resolved: func(stage orchestrator.Stage, filePath string) {
			fmt.Printf("✓ %s: %s\n", stage, filePath)
		},
		Rejected: func(stage orchestrator.Stage, err error) {
			fmt.Printf("✗ %s: %v\n", stage, err)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		log.Fatalf("%s: %v", cmd, err)
	}
}

func bindFlag(fs *pflag.FlagSet, key, name string) {
	if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
		log.Fatalf("Failed to bind --%s: %v", name, err)
	}
}

func (c *cli) commands() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"run":     c.runPipeline,
		"create":  c.create,
		"approve": c.approve,
		"voice":   c.voice,
		"video":   c.video,
		"compose": c.compose,
		"upload":  c.upload,
	}
}

// register declares the flags a command reads
func (c *cli) register(cmd string) {
	fs := c.fs
	switch cmd {
	case "run", "create":
		fs.String("topic", "", "what the copy is about")
		fs.String("style", string(model.StylePress), "press, speech, facebook, instagram, poster or formal")
		fs.String("length", string(model.LengthShort), "short, medium or long")
	}
	switch cmd {
	case "approve", "voice", "video", "compose":
		fs.String("task", "", "task id")
	}
	switch cmd {
	case "run", "video":
		fs.String("image", "", "portrait image: a local file to upload or an uploaded path")
		fs.String("audio", "", "use this audio instead of synthesized speech")
		fs.String("prompt", "", "video prompt")
	}
	switch cmd {
	case "run", "compose":
		fs.Float64("audio-delay", 0, "shift the voice track by this many seconds")
		fs.String("music", "", "background music mixed under the voice: a local file to upload or an uploaded path")
	}
	switch cmd {
	case "run":
		fs.Bool("compose", false, "compose the voice over the video once both finish")
	case "compose":
		fs.String("video", "", "video path; defaults to the task's latest video")
		fs.String("audio", "", "audio path; defaults to the task's latest voice")
		fs.Float64("music-volume", 0, "music level between 0 and 1; 0 means the default")
	case "upload":
		fs.String("kind", string(model.AssetKindImage), "image or audio")
		fs.String("file", "", "local file to upload")
	}
}

func (c *cli) str(name string) string {
	v, _ := c.fs.GetString(name)
	return v
}

func (c *cli) runPipeline(ctx context.Context) error {
	image, err := c.asset(ctx, model.AssetKindImage, c.str("image"))
	if err != nil {
		return err
	}
	audio, err := c.asset(ctx, model.AssetKindAudio, c.str("audio"))
	if err != nil {
		return err
	}
	music, err := c.asset(ctx, model.AssetKindAudio, c.str("music"))
	if err != nil {
		return err
	}
	compose, _ := c.fs.GetBool("compose")
	delay, _ := c.fs.GetFloat64("audio-delay")

	result, err := c.orch.RunPipeline(ctx, orchestrator.PipelineRequest{
		Topic:      c.str("topic"),
		Style:      c.str("style"),
		Length:     c.str("length"),
		ImagePath:  image,
		AudioPath:  audio,
		Prompt:     c.str("prompt"),
		Compose:    compose,
		AudioDelay: delay,
		MusicPath:  music,
	})
	if result != nil {
		fmt.Printf("task:     %s\nvoice:    %s\nvideo:    %s\ncomposed: %s\n", result.TaskID, result.Voice, result.Video, result.Composed)
	}
	return err
}

func (c *cli) create(ctx context.Context) error {
	task, err := c.orch.RequestTaskCreation(ctx, c.str("topic"), c.str("style"), c.str("length"))
	if err != nil {
		return err
	}
	fmt.Printf("%s\n\n%s\n", task.ID, task.Content)
	return nil
}

func (c *cli) approve(ctx context.Context) error {
	return c.orch.RequestApproval(ctx, c.str("task"))
}

func (c *cli) voice(ctx context.Context) error {
	h, err := c.orch.RequestVoice(ctx, c.str("task"))
	if err != nil {
		return err
	}
	_, err = h.Result()
	return err
}

func (c *cli) video(ctx context.Context) error {
	image, err := c.asset(ctx, model.AssetKindImage, c.str("image"))
	if err != nil {
		return err
	}
	audio, err := c.asset(ctx, model.AssetKindAudio, c.str("audio"))
	if err != nil {
		return err
	}
	if audio != "" {
		if err := c.orch.ProvideUploadedAsset(model.AssetKindAudio, audio); err != nil {
			return err
		}
	}

	h, err := c.orch.RequestVideo(ctx, orchestrator.VideoLaunch{
		TaskID:    c.str("task"),
		ImagePath: image,
		Prompt:    c.str("prompt"),
	})
	if err != nil {
		return err
	}
	_, err = h.Result()
	return err
}

func (c *cli) compose(ctx context.Context) error {
	music, err := c.asset(ctx, model.AssetKindAudio, c.str("music"))
	if err != nil {
		return err
	}
	delay, _ := c.fs.GetFloat64("audio-delay")
	volume, _ := c.fs.GetFloat64("music-volume")
	h, err := c.orch.RequestComposition(ctx, orchestrator.ComposeLaunch{
		TaskID:      c.str("task"),
		VideoPath:   c.str("video"),
		AudioPath:   c.str("audio"),
		AudioDelay:  delay,
		MusicPath:   music,
		MusicVolume: volume,
	})
	if err != nil {
		return err
	}
	_, err = h.Result()
	return err
}

func (c *cli) upload(ctx context.Context) error {
	path := c.str("file")
	if path == "" {
		return fmt.Errorf("--file is required")
	}
	asset, err := c.uploadFile(ctx, model.AssetKind(c.str("kind")), path)
	if err != nil {
		return err
	}
	fmt.Println(asset.Path)
	return nil
}

// asset uploads ref when it names a local file and returns the backend path.
// Anything else is taken as an already uploaded path.
func (c *cli) asset(ctx context.Context, kind model.AssetKind, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if info, err := os.Stat(ref); err != nil || info.IsDir() {
		return ref, nil
	}
	asset, err := c.uploadFile(ctx, kind, ref)
	if err != nil {
		return "", err
	}
	return asset.Path, nil
}

func (c *cli) uploadFile(ctx context.Context, kind model.AssetKind, path string) (*model.UploadedAsset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	asset, err := c.gw.UploadAsset(ctx, kind, path, f)
	if err != nil {
		return nil, err
	}
	log.Printf("[mediactl] Uploaded %s as %s", path, asset.Path)
	return asset, nil
}
