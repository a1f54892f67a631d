package congestion

import (
	"context"
	"io"
)

type gatedWriter struct {
	ctx        context.Context
	controller *Controller
	w          io.Writer
}

// NewGatedWriter writes to w no faster than controller allows.
// A nil controller returns w.
func NewGatedWriter(ctx context.Context, controller *Controller, w io.Writer) io.Writer {
	if controller == nil {
		return w
	}
	return &gatedWriter{ctx: ctx, controller: controller, w: w}
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := g.controller.Wait(g.ctx, len(p)-written)
		if err != nil {
			return written, err
		}
		m, err := g.w.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
