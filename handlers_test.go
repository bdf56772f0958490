package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/Tutortoise/captcha-solver-service/cache"
	"github.com/Tutortoise/captcha-solver-service/captcha"
	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/models"
)

type fakeSolver struct {
	dets []models.Detection
	err  error
}

func (f *fakeSolver) Solve(context.Context, image.Image) ([]models.Detection, error) {
	return f.dets, f.err
}

type fakeStats struct{ name string }

func (f fakeStats) Stats() engine.GuardStats {
	return engine.GuardStats{Name: f.name, TotalRuns: 3}
}

func newTestServer(t *testing.T, solver Solver) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	store, err := cache.NewStore(t.TempDir(), cache.DefaultTTL, cache.NewMemoryRepository(), logger)
	test.That(t, err, test.ShouldBeNil)
	static, err := staticFiles()
	test.That(t, err, test.ShouldBeNil)

	state := &AppState{
		Solver: solver,
		Cache:  store,
		Models: []StatsSource{fakeStats{"yolo"}, fakeStats{"siamese"}},
		Static: static,
		Logger: logger,
	}
	srv := httptest.NewServer(state.routes())
	t.Cleanup(srv.Close)
	return srv
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, imaging.New(64, 48, color.White)), test.ShouldBeNil)
	return buf.Bytes()
}

func postImage(t *testing.T, srv *httptest.Server, field string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "captcha.png")
	test.That(t, err, test.ShouldBeNil)
	_, err = fw.Write(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mw.Close(), test.ShouldBeNil)

	resp, err := http.Post(srv.URL+routePrefix+"/reason", mw.FormDataContentType(), &body)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	test.That(t, json.NewDecoder(resp.Body).Decode(&e), test.ShouldBeNil)
	return e
}

func TestReasonAndCache(t *testing.T) {
	target := models.Detection{Label: "target", LabelIndex: 1, BBox: models.BBox{4, 4, 20, 20}, Confidence: 0.8}
	srv := newTestServer(t, &fakeSolver{dets: []models.Detection{target}})

	resp := postImage(t, srv, "image", pngBytes(t))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	var out ReasonResponse
	test.That(t, json.NewDecoder(resp.Body).Decode(&out), test.ShouldBeNil)
	test.That(t, out.Detections, test.ShouldResemble, []models.Detection{target})

	u, err := url.Parse(out.URL)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.Path, test.ShouldEqual, routePrefix+"/cache")
	test.That(t, u.Query().Get("file"), test.ShouldEndWith, ".png")

	cached, err := http.Get(out.URL)
	test.That(t, err, test.ShouldBeNil)
	defer cached.Body.Close()
	test.That(t, cached.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, cached.Header.Get("Content-Type"), test.ShouldEqual, "image/png")
	img, err := png.Decode(cached.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 64, 48))
}

func TestReasonErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"mismatch", errors.Wrap(captcha.ErrStructuralMismatch, "3 glyphs, 2 targets"), http.StatusUnprocessableEntity, CodeLayoutMismatch},
		{"unloaded", &detections.StageError{Stage: detections.StatusPreprocess, Err: detections.ErrUnloadedModel}, http.StatusServiceUnavailable, CodeModelUnavailable},
		{"engine", errors.New("engine exploded"), http.StatusInternalServerError, CodeProcessingError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeSolver{err: tc.err})
			resp := postImage(t, srv, "image", pngBytes(t))
			test.That(t, resp.StatusCode, test.ShouldEqual, tc.status)
			test.That(t, decodeError(t, resp).Code, test.ShouldEqual, tc.code)
		})
	}
}

func TestReasonBadUpload(t *testing.T) {
	srv := newTestServer(t, &fakeSolver{})

	resp := postImage(t, srv, "image", []byte("not an image"))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, decodeError(t, resp).Code, test.ShouldEqual, CodeInvalidImage)

	resp = postImage(t, srv, "file", pngBytes(t))
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, decodeError(t, resp).Code, test.ShouldEqual, CodeInvalidRequest)
}

func TestCacheErrors(t *testing.T) {
	srv := newTestServer(t, &fakeSolver{})

	resp, err := http.Get(srv.URL + routePrefix + "/cache?file=" + url.QueryEscape("../etc/passwd"))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)

	resp2, err := http.Get(srv.URL + routePrefix + "/cache?file=missing.png")
	test.That(t, err, test.ShouldBeNil)
	defer resp2.Body.Close()
	test.That(t, resp2.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestIndexAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeSolver{})

	resp, err := http.Get(srv.URL + "/")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	page, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(page), test.ShouldContainSubstring, `id="uploadForm"`)

	script, err := http.Get(srv.URL + "/js/reason.js")
	test.That(t, err, test.ShouldBeNil)
	defer script.Body.Close()
	test.That(t, script.StatusCode, test.ShouldEqual, http.StatusOK)

	metrics, err := http.Get(srv.URL + "/metrics")
	test.That(t, err, test.ShouldBeNil)
	defer metrics.Body.Close()
	var body struct {
		Sessions []engine.GuardStats `json:"sessions"`
	}
	test.That(t, json.NewDecoder(metrics.Body).Decode(&body), test.ShouldBeNil)
	test.That(t, len(body.Sessions), test.ShouldEqual, 2)
	test.That(t, body.Sessions[0].Name, test.ShouldEqual, "yolo")
	test.That(t, body.Sessions[1].TotalRuns, test.ShouldEqual, 3)
}
