package instrument

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/skytrace/internal/propagation"
	"github.com/GriffinCanCode/skytrace/internal/segment"
)

type exitKey struct{}

// Resty registers hooks on client that trace requests whose context carries
// a segment. Each traced request gets an exit span named after its path and
// an sw8 header naming the target host.
func Resty(client *resty.Client) *resty.Client {
	return client.
		OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
			target := targetURL(c, r.URL)
			sc, span := startExit(r.Context(), target.Path, target.Host, segment.SpanLayerHTTP, ComponentHTTPClient)
			if sc == nil {
				return nil
			}
			span.AddTag("http.method", r.Method)
			span.AddTag("url", target.String())

			propagation.Inject(propagation.HeaderCarrier(r.Header), sc.CreateSW8HeaderValue(span, target.Host), sc.Extension())
			r.SetContext(context.WithValue(r.Context(), exitKey{}, span))
			return nil
		}).
		OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			span := exitSpan(resp.Request)
			if span == nil {
				return nil
			}
			span.AddTag("status_code", strconv.Itoa(resp.StatusCode()))
			if resp.StatusCode() >= 400 {
				span.ErrorOccurred()
			}
			span.EndSpan()
			return nil
		}).
		OnError(func(r *resty.Request, err error) {
			span := exitSpan(r)
			if span == nil {
				return
			}
			span.ErrorOccurred()
			span.AddLog("error.kind", "http", "message", err.Error())
			span.EndSpan()
		})
}

func exitSpan(r *resty.Request) *segment.Span {
	if r == nil {
		return nil
	}
	span, _ := r.Context().Value(exitKey{}).(*segment.Span)
	return span
}

// targetURL joins a relative request URL to the client's base URL the way
// resty does.
func targetURL(c *resty.Client, raw string) *url.URL {
	u, err := url.Parse(raw)
	if err == nil && (u.IsAbs() || c.BaseURL == "") {
		return u
	}
	joined, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/"))
	if err != nil {
		return &url.URL{Path: raw}
	}
	return joined
}
