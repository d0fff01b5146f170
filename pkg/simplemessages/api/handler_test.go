package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/metrics"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/memory"
	memorystorage "github.com/tendant/simple-messages/pkg/simplemessages/storage/memory"
	"github.com/tendant/simple-messages/pkg/simplemessages/urlstrategy"
)

// setupHandlerTest creates a Handler over in-memory stores
func setupHandlerTest(t *testing.T, opts ...simplemessages.Option) (http.Handler, simplemessages.Service) {
	t.Helper()
	store := memorystorage.New()
	base := []simplemessages.Option{
		simplemessages.WithRepository(memory.New()),
		simplemessages.WithBlobStore("memory", store),
		simplemessages.WithEventSink(simplemessages.NewNoopEventSink()),
	}
	svc, err := simplemessages.New(append(base, opts...)...)
	require.NoError(t, err)

	return NewHandler(svc).Routes(), svc
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+FormImage+`"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		FormName:    "Ada Lovelace",
		FormEmail:   "ada@example.com",
		FormMessage: "Hello from the handler test",
	}
}

func TestHandler_Submit_Success(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), nil))

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(simplemessages.OutcomeSuccess), resp.Outcome)
	assert.NotEmpty(t, resp.Submission.ID)
	assert.Equal(t, "Ada Lovelace", resp.Submission.DisplayName)
	assert.Empty(t, resp.Warning)
	assert.NotContains(t, w.Body.String(), "ada@example.com")
}

func TestHandler_Submit_URLEncoded(t *testing.T) {
	router, _ := setupHandlerTest(t)

	form := url.Values{}
	for k, v := range validFields() {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandler_Submit_WithImage(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), &formFile{
		name:        "me.png",
		contentType: "image/png",
		data:        simplemessages.PlaceholderImage(),
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Submission.MediaRef)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/"+resp.Submission.MediaRef, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, simplemessages.PlaceholderImage(), w.Body.Bytes())
}

func TestHandler_Submit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]string)
		file      *formFile
		wantField string
	}{
		{"missing name", func(f map[string]string) { delete(f, FormName) }, nil, simplemessages.FieldDisplayName},
		{"blank message", func(f map[string]string) { f[FormMessage] = "   " }, nil, simplemessages.FieldMessageBody},
		{"bad email", func(f map[string]string) { f[FormEmail] = "not-an-email" }, nil, simplemessages.FieldContactEmail},
		{
			"not an image",
			func(f map[string]string) {},
			&formFile{name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
			simplemessages.FieldMedia,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := setupHandlerTest(t)
			fields := validFields()
			tt.mutate(fields)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, fields, tt.file))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantField, resp.Field)
			assert.NotEmpty(t, resp.Error)

			page, err := svc.GetFeed(context.Background(), simplemessages.GetFeedRequest{})
			require.NoError(t, err)
			assert.Empty(t, page.Entries)
		})
	}
}

func TestHandler_Submit_BodyTooLarge(t *testing.T) {
	svc, err := simplemessages.New(simplemessages.WithRepository(memory.New()))
	require.NoError(t, err)
	router := NewHandler(svc, WithMaxBodyBytes(1024)).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), &formFile{
		name:        "big.png",
		contentType: "image/png",
		data:        bytes.Repeat([]byte{0x89}, 4096),
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, simplemessages.FieldMedia, resp.Field)
	assert.Contains(t, resp.Error, "too large")
}

func TestHandler_Submit_OversizedNonImage(t *testing.T) {
	svc, err := simplemessages.New(simplemessages.WithRepository(memory.New()))
	require.NoError(t, err)
	router := NewHandler(svc, WithMaxBodyBytes(1024)).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), &formFile{
		name:        "notes.txt",
		contentType: "text/plain",
		data:        bytes.Repeat([]byte("a"), 4096),
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, simplemessages.FieldMedia, resp.Field)
	assert.Contains(t, resp.Error, simplemessages.ErrUnsupportedMediaType.Error())
	assert.NotContains(t, resp.Error, "too large")
}

func TestHandler_Submit_OversizedTextField(t *testing.T) {
	svc, err := simplemessages.New(simplemessages.WithRepository(memory.New()))
	require.NoError(t, err)
	router := NewHandler(svc, WithMaxBodyBytes(1024)).Routes()

	fields := validFields()
	fields[FormMessage] = strings.Repeat("a", 4096)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, fields, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// brokenStore fails every upload.
type brokenStore struct {
	*memorystorage.Backend
}

func (brokenStore) UploadWithParams(ctx context.Context, reader io.Reader, params simplemessages.UploadParams) error {
	return errors.New("bucket unreachable")
}

func TestHandler_Submit_StorageWarning(t *testing.T) {
	svc, err := simplemessages.New(
		simplemessages.WithRepository(memory.New()),
		simplemessages.WithBlobStore("s3", brokenStore{memorystorage.New()}),
	)
	require.NoError(t, err)
	router := NewHandler(svc).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), &formFile{
		name:        "me.png",
		contentType: "image/png",
		data:        simplemessages.PlaceholderImage(),
	}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(simplemessages.OutcomeSuccessWithWarning), resp.Outcome)
	assert.NotEmpty(t, resp.Warning)
	assert.Empty(t, resp.Submission.MediaRef)
}

// unavailableRepository fails every write.
type unavailableRepository struct {
	*memory.Repository
}

func (unavailableRepository) CreateSubmission(ctx context.Context, s *simplemessages.Submission) error {
	return errors.New("connection refused")
}

func TestHandler_Submit_StoreUnavailable(t *testing.T) {
	svc, err := simplemessages.New(simplemessages.WithRepository(unavailableRepository{memory.New()}))
	require.NoError(t, err)
	router := NewHandler(svc).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandler_GetFeed(t *testing.T) {
	router, _ := setupHandlerTest(t)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t, validFields(), nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Entries, 2)
	assert.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Entries[0].Placeholder)
	assert.Equal(t, simplemessages.DefaultPlaceholderURL, page.Entries[0].MediaURL)
	assert.NotContains(t, w.Body.String(), "ada@example.com")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed?limit=2&cursor="+url.QueryEscape(page.NextCursor), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var next FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	require.Len(t, next.Entries, 1)
	assert.Empty(t, next.NextCursor)
	assert.NotEqual(t, page.Entries[1].ID, next.Entries[0].ID)
}

func TestHandler_GetFeed_Empty(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())
}

func TestHandler_GetFeed_BadParameters(t *testing.T) {
	router, _ := setupHandlerTest(t)

	for _, target := range []string{"/feed?limit=abc", "/feed?limit=-1", "/feed?cursor=%21%21"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestHandler_GetFeed_MediaProxyURLs(t *testing.T) {
	router, _ := setupHandlerTest(t, simplemessages.WithURLStrategy(urlstrategy.NewMediaProxyStrategy("https://api.example.com")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), &formFile{
		name:        "me.png",
		contentType: "image/png",
		data:        simplemessages.PlaceholderImage(),
	}))
	require.Equal(t, http.StatusCreated, w.Code)
	var created SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))
	var page FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "https://api.example.com/media/"+created.Submission.MediaRef, page.Entries[0].MediaURL)
}

func TestHandler_GetSubmission(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, validFields(), nil))
	var created SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/"+created.Submission.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var got SubmissionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.Submission.ID, got.ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/0190f1f2-7c3a-7d4e-8f00-123456789abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetMedia_NotFound(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/med_01j9z3kq4d8x7v2m5n6p0r1sab", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Metrics(t *testing.T) {
	svc, err := simplemessages.New(simplemessages.WithRepository(memory.New()))
	require.NoError(t, err)
	m := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	router := NewHandler(svc, WithMetrics(m)).Routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/abc", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/feed", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/submissions/{id}", "400")))
}
