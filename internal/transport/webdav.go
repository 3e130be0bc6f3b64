package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
)

const (
	filePerm os.FileMode = 0600
	dirPerm  os.FileMode = 0700
)

// WebDAV is a Transport backed by a WebDAV collection.
type WebDAV struct {
	client *gowebdav.Client
}

// NewWebDAV returns a WebDAV transport rooted at baseURL. timeout bounds each
// HTTP request; callers add their own context deadlines on top.
func NewWebDAV(baseURL, username, password string, timeout time.Duration) (*WebDAV, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newError(ConnectionError, "connect", baseURL, errors.New("remote url must be http(s)://host/path"))
	}
	c := gowebdav.NewClient(strings.TrimSuffix(baseURL, "/"), username, password)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &WebDAV{client: c}, nil
}

func (w *WebDAV) List(ctx context.Context, dir string) ([]Entry, error) {
	var infos []os.FileInfo
	err := run(ctx, func() (err error) {
		infos, err = w.client.ReadDir(remotePath(dir))
		return err
	})
	if err != nil {
		return nil, classify("list", dir, err)
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		e := Entry{
			Path:     path.Join(strings.Trim(dir, "/"), fi.Name()),
			IsDir:    fi.IsDir(),
			Modified: fi.ModTime().UTC(),
			Size:     fi.Size(),
		}
		if f, ok := fi.(gowebdav.File); ok {
			e.ETag = f.ETag()
		} else if f, ok := fi.(*gowebdav.File); ok {
			e.ETag = f.ETag()
		}
		out = append(out, e)
	}
	return out, nil
}

// errChanged is returned by Get when the resource was replaced while it was
// being read. It classifies as a transient server error.
var errChanged = errors.New("resource changed during read")

// Get reads p between two Stat calls and fails when the modification time
// moved, so the returned time always belongs to the returned bytes.
func (w *WebDAV) Get(ctx context.Context, p string) ([]byte, time.Time, error) {
	var (
		data []byte
		mod  time.Time
	)
	err := run(ctx, func() error {
		before, err := w.client.Stat(remotePath(p))
		if err != nil {
			return err
		}
		if data, err = w.client.Read(remotePath(p)); err != nil {
			return err
		}
		after, err := w.client.Stat(remotePath(p))
		if err != nil {
			return err
		}
		if !after.ModTime().Equal(before.ModTime()) {
			return errChanged
		}
		mod = after.ModTime().UTC()
		return nil
	})
	if err != nil {
		return nil, time.Time{}, classify("get", p, err)
	}
	return data, mod, nil
}

func (w *WebDAV) Put(ctx context.Context, p string, data []byte) error {
	err := run(ctx, func() error {
		return w.client.Write(remotePath(p), data, filePerm)
	})
	return classify("put", p, err)
}

func (w *WebDAV) Delete(ctx context.Context, p string) error {
	err := run(ctx, func() error {
		if _, err := w.client.Stat(remotePath(p)); err != nil {
			return err
		}
		return w.client.Remove(remotePath(p))
	})
	return classify("delete", p, err)
}

func (w *WebDAV) MakeCollection(ctx context.Context, p string) error {
	err := run(ctx, func() error {
		return w.client.MkdirAll(remotePath(p), dirPerm)
	})
	return classify("mkcol", p, err)
}

// run executes fn, giving up when ctx ends. The request keeps running in the
// background until the client timeout fires; its result is discarded.
func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func remotePath(p string) string {
	return "/" + strings.TrimPrefix(p, "/")
}

// classify maps a gowebdav or network error to a transport error.
func classify(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var se gowebdav.StatusError
	if errors.As(err, &se) {
		return newError(statusKind(se.Status), op, p, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(ConnectionError, op, p, err)
	case errors.Is(err, os.ErrNotExist):
		return newError(NotFound, op, p, err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return newError(ConnectionError, op, p, err)
	}
	return newError(ServerError, op, p, err)
}

func statusKind(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return AuthFailure
	case code == http.StatusNotFound, code == http.StatusGone, code == http.StatusConflict:
		return NotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return ConnectionError
	case code >= 400 && code < 500:
		return Rejected
	default:
		return ServerError
	}
}
