package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/client"
	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/motion"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Format  string // "json" | "text"
	Timeout time.Duration
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func defaultServer() string {
	if s := os.Getenv("ASL_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// NewRootCommand creates the asl-tail root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "asl-tail",
		Short:         "Watch and trigger ASL gestures on an asl server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				log.Init("debug")
			} else {
				log.Init("warn")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Server, "server", "s", defaultServer(), "server URL (ASL_SERVER)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "connect and request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewClipsCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPoseCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// dial connects to the server within the request timeout.
func dial(cmd *cobra.Command, opts *RootOptions) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	return client.Dial(ctx, opts.Server, client.WithLogger(log.For("client")))
}

func requestContext(cmd *cobra.Command, opts *RootOptions) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), opts.Timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// NewClipsCommand lists the server's clips.
func NewClipsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clips",
		Short: "List available clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()
			clips, err := c.Clips(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, clips)
			}
			for _, clip := range clips {
				fmt.Fprintf(out, "%-12s %-12s %5.2fs %d keyframes\n",
					clip.Name, clip.Label, clip.Duration, clip.Keyframes)
			}
			return nil
		},
	}
}

// NewPlayCommand starts a clip.
func NewPlayCommand(opts *RootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "play <clip>",
		Short: "Play a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			// Subscribe before playing so the completion cannot be missed.
			var events <-chan client.Event
			streamCtx, stopStream := context.WithCancel(cmd.Context())
			defer stopStream()
			if wait {
				if events, err = c.Frames(streamCtx); err != nil {
					return err
				}
			}

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()
			id, err := c.Play(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				writeJSON(out, map[string]string{"clip": args[0], "play_id": id})
			} else {
				fmt.Fprintf(out, "▶ %s (%s)\n", args[0], id)
			}

			if !wait {
				return nil
			}
			done, err := waitForCompletion(events, id)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(out, done)
			}
			fmt.Fprintf(out, "✓ %s complete after %.2fs\n", done.Clip, done.Duration)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the clip to complete")
	return cmd
}

// waitForCompletion returns the completion of playthrough id.
func waitForCompletion(events <-chan client.Event, id string) (*gesture.Completion, error) {
	for ev := range events {
		if ev.Complete != nil && ev.Complete.PlayID == id {
			return ev.Complete, nil
		}
	}
	return nil, errors.New("frame stream closed before completion")
}

// NewStopCommand abandons the running clip.
func NewStopCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()
			stopped, err := c.Stop(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, map[string]bool{"stopped": stopped})
			}
			if stopped {
				fmt.Fprintln(out, "■ stopped")
			} else {
				fmt.Fprintln(out, "nothing playing")
			}
			return nil
		},
	}
}

// NewStatusCommand prints the playback status.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show playback status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, st)
			}
			fmt.Fprintln(out, formatStatus(st))
			return nil
		},
	}
}

func formatStatus(st gesture.Status) string {
	if st.State != gesture.StatePlaying {
		return fmt.Sprintf("idle (%d completed)", st.Completed)
	}
	return fmt.Sprintf("playing %s %.2f/%.2fs (%.0f%%)", st.Clip, st.Elapsed, st.Duration, st.Progress*100)
}

// NewPoseCommand prints the latest frame once.
func NewPoseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pose",
		Short: "Show the most recent frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()
			f, err := c.Pose(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, f)
			}
			fmt.Fprintln(out, formatFrame(f))
			return nil
		},
	}
}

// NewWatchCommand prints the frame stream until interrupted.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var every int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print composed frames as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < 1 {
				return fmt.Errorf("--every must be at least 1")
			}
			c, err := dial(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			events, err := c.Frames(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var n int
			for ev := range events {
				switch {
				case ev.Complete != nil:
					if opts.Format == "json" {
						writeJSON(out, ev.Complete)
					} else {
						fmt.Fprintf(out, "✓ %s complete (#%d)\n", ev.Complete.Clip, ev.Complete.Count)
					}
				case ev.Frame != nil:
					n++
					if n%every != 0 {
						continue
					}
					if opts.Format == "json" {
						writeJSON(out, ev.Frame)
					} else {
						fmt.Fprintln(out, formatFrame(*ev.Frame))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&every, "every", "n", 1, "print every nth frame")
	return cmd
}

func formatFrame(f motion.Frame) string {
	head := f.Joint(gesture.JointHead)
	torso := f.Joint(gesture.JointTorso)
	state := "idle"
	if f.State == gesture.StatePlaying {
		state = fmt.Sprintf("%s %3.0f%%", f.Clip, f.Progress*100)
	}
	return fmt.Sprintf("#%-6d t=%7.2f %-16s head_yaw=%+.4f head_y=%+.4f torso_sy=%.4f",
		f.Seq, f.Time, state, head.Rotation.Y, head.Position.Y, torso.Scale.Y)
}
