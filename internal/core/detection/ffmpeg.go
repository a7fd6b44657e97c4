// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultFFmpegCommand  = "ffmpeg"
	DefaultFFprobeCommand = "ffprobe"

	ffprobeArgs      = "-v error -select_streams v:0 -show_entries stream=width,height,nb_frames,r_frame_rate,duration -of json"
	ffmpegInputArgs  = "-v error -i"
	ffmpegOutputArgs = "-f rawvideo -pix_fmt rgba -"
	CommandSeparator = " "
)

// FFmpegFrameOpener decodes videos by piping raw RGBA frames out of ffmpeg.
// Stream geometry and frame count come from ffprobe.
type FFmpegFrameOpener struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegFrameOpener uses the given executables, falling back to the ones
// on PATH.
func NewFFmpegFrameOpener(ffmpegPath, ffprobePath string) *FFmpegFrameOpener {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegCommand
	}
	if ffprobePath == "" {
		ffprobePath = DefaultFFprobeCommand
	}
	return &FFmpegFrameOpener{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	NbFrames   string `json:"nb_frames"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
}

// frameCount prefers the container's frame count and otherwise estimates it
// from duration and frame rate.
func (s probeStream) frameCount() int {
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		return n
	}
	duration, err := strconv.ParseFloat(s.Duration, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(duration * parseFrameRate(s.RFrameRate)))
}

func parseFrameRate(in string) float64 {
	num, den, found := strings.Cut(in, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (o *FFmpegFrameOpener) probe(ctx context.Context, path string) (probeStream, error) {
	args := append(strings.Split(ffprobeArgs, CommandSeparator), path)
	out, err := exec.CommandContext(ctx, o.FFprobePath, args...).Output()
	if err != nil {
		return probeStream{}, fmt.Errorf("error running ffprobe: %w", err)
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return probeStream{}, fmt.Errorf("unreadable ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 || parsed.Streams[0].Width <= 0 || parsed.Streams[0].Height <= 0 {
		return probeStream{}, errors.New("no video stream found")
	}
	return parsed.Streams[0], nil
}

// Open probes path and starts decoding it.
func (o *FFmpegFrameOpener) Open(ctx context.Context, path string) (FrameSource, error) {
	stream, err := o.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	args := append(strings.Split(ffmpegInputArgs, CommandSeparator), path)
	args = append(args, strings.Split(ffmpegOutputArgs, CommandSeparator)...)
	cmd := exec.CommandContext(ctx, o.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting ffmpeg: %w", err)
	}

	return &ffmpegFrameSource{
		cmd:        cmd,
		stdout:     stdout,
		frameCount: stream.frameCount(),
		frame:      image.NewRGBA(image.Rect(0, 0, stream.Width, stream.Height)),
	}, nil
}

type ffmpegFrameSource struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	frameCount int
	frame      *image.RGBA
	closed     bool
}

func (s *ffmpegFrameSource) FrameCount() int {
	return s.frameCount
}

func (s *ffmpegFrameSource) Next() (image.Image, error) {
	if _, err := io.ReadFull(s.stdout, s.frame.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return s.frame, nil
}

// Close stops ffmpeg if it is still decoding and reaps the process.
func (s *ffmpegFrameSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdout.Close()
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if err := s.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// killed early on purpose
			return nil
		}
		return err
	}
	return nil
}
