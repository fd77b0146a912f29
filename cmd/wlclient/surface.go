package main

import (
	"fmt"
	"image"
	"time"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/shm"
	"github.com/spf13/cobra"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
)

var (
	surfaceWidth  int32
	surfaceHeight int32
	surfaceColor  string
	surfaceWait   time.Duration
)

var surfaceCmd = &cobra.Command{
	Use:   "surface",
	Short: "Create a surface and commit a solid-color shm buffer to it",
	Long: `surface creates a wl_surface, fills a shared memory buffer with a color,
and commits it. Without a shell protocol the compositor will not show the
surface, but the requests and the compositor's replies can be inspected with
WAYLAND_DEBUG=1.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fill, ok := colornames.Map[surfaceColor]
		if !ok {
			return fmt.Errorf("unknown color %q", surfaceColor)
		}

		c, _, err := connect()
		if err != nil {
			return err
		}
		defer c.Disconnect()

		wlshm, err := c.Shm()
		if err != nil {
			return fmt.Errorf("bind wl_shm: %w", err)
		}
		surface, err := c.CreateSurface()
		if err != nil {
			return fmt.Errorf("create surface: %w", err)
		}
		defer surface.Destroy()

		err = c.Roundtrip(cfg.RoundtripTimeout)
		if err != nil {
			return err
		}
		if !wlshm.HasFormat(protocol.FormatARGB8888) {
			return fmt.Errorf("compositor does not support ARGB8888")
		}

		buf, err := shm.NewImageBuffer(wlshm, surfaceWidth, surfaceHeight)
		if err != nil {
			return err
		}
		defer buf.Destroy()

		img := buf.Image()
		draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)

		released := false
		buf.Buffer().OnRelease(func() { released = true })

		err = paint(surface, buf)
		if err != nil {
			return err
		}
		err = c.Roundtrip(cfg.RoundtripTimeout)
		if err != nil {
			return err
		}

		deadline := time.Now().Add(surfaceWait)
		for !released && time.Now().Before(deadline) {
			_, err := c.Dispatch()
			if err != nil {
				return err
			}
			time.Sleep(10 * time.Millisecond)
		}

		out := cmd.OutOrStdout()
		state := surface.Committed()
		fmt.Fprintf(out, "%v: committed %v (%vx%v, %v)\n", surface, state.Buffer, surfaceWidth, surfaceHeight, surfaceColor)
		fmt.Fprintf(out, "buffer released: %v\n", released)
		return nil
	},
}

func init() {
	surfaceCmd.Flags().Int32Var(&surfaceWidth, "width", 256, "buffer width")
	surfaceCmd.Flags().Int32Var(&surfaceHeight, "height", 256, "buffer height")
	surfaceCmd.Flags().StringVar(&surfaceColor, "color", "cornflowerblue", "SVG color name to fill the buffer with")
	surfaceCmd.Flags().DurationVar(&surfaceWait, "wait", time.Second, "how long to wait for the compositor to release the buffer")
}

func paint(surface *wl.Surface, buf *shm.ImageBuffer) error {
	err := surface.Attach(buf.Buffer(), 0, 0)
	if err != nil {
		return err
	}

	b := buf.Bounds()
	if surface.Version() >= 4 {
		err = surface.DamageBuffer(0, 0, int32(b.Dx()), int32(b.Dy()))
	} else {
		err = surface.Damage(0, 0, int32(b.Dx()), int32(b.Dy()))
	}
	if err != nil {
		return err
	}

	return surface.Commit()
}
