package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"image"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/httputil"
	"github.com/matzehuels/backdrop/pkg/template"
)

// LoadTimeout bounds a background load.
const LoadTimeout = 30 * time.Second

var (
	// ErrTainted is returned when a background would taint the capture:
	// it is neither embedded nor served from an allowed origin.
	ErrTainted = errors.New(errors.ErrCodeRasterTaint, "background is not same-origin")

	// ErrNoBackground is returned for templates without background data.
	ErrNoBackground = errors.New(errors.ErrCodeDataLoad, "template has no background")
)

// Loader resolves template backgrounds to decoded images.
type Loader struct {
	// Client fetches remote backgrounds; nil disables remote loads.
	Client *httputil.Client
	// Timeout defaults to LoadTimeout.
	Timeout time.Duration
	// Origins lists the hosts a same-origin check accepts. It is only
	// consulted when SameOrigin is set.
	Origins    []string
	SameOrigin bool
}

// Load decodes an embedded image or fetches and decodes a remote one.
// Timeouts map to RASTER_TIMEOUT, fetch and decode failures to
// DATA_LOAD_ERROR.
func (l *Loader) Load(ctx context.Context, img template.Image) (image.Image, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = LoadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := l.bytes(ctx, img)
	if err != nil {
		return nil, l.classify(ctx, err)
	}

	type decoded struct {
		img image.Image
		err error
	}
	ch := make(chan decoded, 1)
	go func() {
		out, err := imaging.Decode(bytes.NewReader(data))
		ch <- decoded{out, err}
	}()
	select {
	case d := <-ch:
		if d.err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataLoad, d.err, "decode background")
		}
		return d.img, nil
	case <-ctx.Done():
		return nil, l.classify(ctx, ctx.Err())
	}
}

func (l *Loader) bytes(ctx context.Context, img template.Image) ([]byte, error) {
	if img.Embedded() {
		return img.Data, nil
	}
	if img.URL == "" {
		return nil, ErrNoBackground
	}
	if rest, ok := strings.CutPrefix(img.URL, "data:"); ok {
		return decodeDataURL(rest)
	}

	if err := errors.ValidateURL(img.URL); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "unsupported background url %q", img.URL)
	}
	u, err := url.Parse(img.URL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "parse background url")
	}
	if l.SameOrigin && !l.allowed(u.Host) {
		return nil, ErrTainted
	}
	if l.Client == nil {
		return nil, errors.New(errors.ErrCodeDataLoad, "remote backgrounds are disabled")
	}
	return l.Client.GetBytes(ctx, img.URL)
}

func (l *Loader) allowed(host string) bool {
	for _, o := range l.Origins {
		if strings.EqualFold(o, host) {
			return true
		}
	}
	return false
}

func (l *Loader) classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.ErrCodeRasterTimeout, err, "background load timed out")
	}
	if errors.GetCode(err) != "" {
		return err
	}
	if stderrors.As(err, new(*errors.RateLimitedError)) {
		return errors.Wrap(errors.ErrCodeRateLimited, err, "background host is rate limiting requests")
	}
	return errors.Wrap(errors.ErrCodeDataLoad, err, "load background")
}

// decodeDataURL handles "image/png;base64,...".
func decodeDataURL(s string) ([]byte, error) {
	meta, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New(errors.ErrCodeDataLoad, "unsupported data url")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "decode data url")
	}
	return data, nil
}
