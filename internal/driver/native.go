package driver

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Native converts images to raster instructions in-process and writes them to
// the device through Send.
type Native struct{}

var _ Driver = (*Native)(nil)

// RenderAndSend prints job.ImagePath on the label loaded in the printer.
func (n *Native) RenderAndSend(ctx context.Context, job Job) error {
	model, ok := LookupModel(job.Model)
	if !ok {
		return newError(KindModel, "unsupported printer model %q", job.Model)
	}
	label, ok := LookupLabel(job.Label)
	if !ok {
		return newError(KindLabel, "unsupported label size %q", job.Label)
	}

	img, err := loadImage(job.ImagePath)
	if err != nil {
		return err
	}

	data, err := Raster(img, label, model, job.Options)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return newError(KindDevice, "print cancelled before send: %v", err)
	}
	return Send(ctx, job.PrinterURI, data)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindImage, "open image: %v", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, newError(KindImage, "cannot identify image file %s: %v", path, err)
	}
	return img, nil
}
