package viamdev

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.viam.com/rdk/components/camera"

	"evalagent/device"
)

// mimeTypeDepth is Viam's raw depth format.
const mimeTypeDepth = "image/vnd.viam.dep"

// NamedFrame is one decoded image from a multi-sensor camera.
type NamedFrame struct {
	Source   string
	MimeType string
	Image    image.Image
}

// ImageSource returns every image a camera captured at one instant.
type ImageSource interface {
	NamedFrames(ctx context.Context) ([]NamedFrame, error)
}

// CameraImages reads color and depth from a camera.Camera.
type CameraImages struct {
	Camera camera.Camera
}

func (c CameraImages) NamedFrames(ctx context.Context) ([]NamedFrame, error) {
	images, _, err := c.Camera.Images(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]NamedFrame, 0, len(images))
	for _, ni := range images {
		img, err := ni.Image(ctx)
		if err != nil {
			return nil, fmt.Errorf("decode %s image: %w", ni.SourceName, err)
		}
		out = append(out, NamedFrame{Source: ni.SourceName, MimeType: ni.MimeType(), Image: img})
	}
	return out, nil
}

// Camera splits a camera's images into a color/depth pair.
type Camera struct {
	source ImageSource
	closer device.Closer
}

var _ device.RGBDCapture = (*Camera)(nil)

// NewCamera wraps source. closer is released by Close and may be nil.
func NewCamera(source ImageSource, closer device.Closer) *Camera {
	return &Camera{source: source, closer: closer}
}

func (c *Camera) Frame(ctx context.Context) (device.Frame, error) {
	frames, err := c.source.NamedFrames(ctx)
	if err != nil {
		return device.Frame{}, err
	}

	var out device.Frame
	for _, f := range frames {
		if isDepth(f) {
			if out.Depth == nil {
				out.Depth = f.Image
			}
			continue
		}
		if out.Color == nil {
			out.Color = f.Image
		}
	}
	if out.Color == nil {
		return device.Frame{}, fmt.Errorf("camera returned no color image")
	}
	if out.Depth == nil {
		return device.Frame{}, fmt.Errorf("camera returned no depth image")
	}
	return out, nil
}

// Close releases the machine connection, if any.
func (c *Camera) Close(ctx context.Context) error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close(ctx)
}

func isDepth(f NamedFrame) bool {
	if f.MimeType == mimeTypeDepth {
		return true
	}
	if strings.Contains(strings.ToLower(f.Source), "depth") {
		return true
	}
	switch f.Image.(type) {
	case *image.Gray16:
		return true
	}
	return false
}
