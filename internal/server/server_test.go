package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/funnelboard/internal/chart"
	"github.com/KaramelBytes/funnelboard/internal/logging"
	"github.com/KaramelBytes/funnelboard/internal/parser"
	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankCSV = "age;job;marital;loan;y\n" +
	"30;admin.;married;no;no\n" +
	"35;services;single;yes;yes\n" +
	"40;retired;married;no;no\n" +
	"38;admin.;divorced;no;yes\n" +
	"50;technician;married;yes;no\n"

func newTestServer(t *testing.T, maxUpload int64) *Server {
	t.Helper()
	pipe, err := pipeline.New(8, logging.Discard())
	require.NoError(t, err)
	return New(Options{
		MaxUploadBytes: maxUpload,
		TargetColumn:   "y",
		RangeColumn:    "age",
		FunnelColumns:  []string{"job", "marital", "loan"},
		ChartMode:      chart.Bar,
		SheetName:      "filtered",
		Parse:          parser.Options{},
	}, session.NewStore(time.Hour), pipe, logging.Discard())
}

func do(t *testing.T, s *Server, method, path string, body []byte, ctype string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, name, content string) sessionResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(t, s, http.MethodPost, "/api/sessions", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestUploadAndDescribe(t *testing.T) {
	s := newTestServer(t, 0)
	sess := upload(t, s, "bank.csv", bankCSV)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "bank.csv", sess.Name)
	assert.Equal(t, 5, sess.Rows)
	require.NotNil(t, sess.Profile)
	assert.Len(t, sess.Profile.Cols, 5)
	assert.Equal(t, 30.0, sess.Spec.Ranges["age"].Min)
	assert.Equal(t, 50.0, sess.Spec.Ranges["age"].Max)
	assert.True(t, sess.Spec.Selections["job"].IsAll())

	rec := do(t, s, http.MethodGet, "/api/sessions/"+sess.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[sessionResponse](t, rec)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "y", got.Target)

	rec = do(t, s, http.MethodGet, "/api/sessions/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "session not found")
}

func TestUploadRawBodyAndRejections(t *testing.T) {
	s := newTestServer(t, 256)

	rec := do(t, s, http.MethodPost, "/api/sessions?name=bank.csv", []byte(bankCSV), "text/csv")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "application/octet-stream")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unable to parse file")

	rec = do(t, s, http.MethodPost, "/api/sessions", []byte(strings.Repeat("a;b\n", 200)), "text/csv")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions", []byte("--x--"), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunnelChartExportFlow(t *testing.T) {
	s := newTestServer(t, 0)
	sess := upload(t, s, "bank.csv", bankCSV)
	base := "/api/sessions/" + sess.ID

	rec := do(t, s, http.MethodGet, base+"/chart", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	body := `{"ranges":{"age":{"min":30,"max":40}},"selections":{"job":["admin.","all"]},"columns":["age","job","y"]}`
	rec = do(t, s, http.MethodPost, base+"/funnel", []byte(body), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fr := decode[funnelResponse](t, rec)
	assert.Equal(t, 4, fr.Rows)
	assert.Equal(t, 5, fr.RawRows)
	assert.Empty(t, fr.Notice)
	require.NotNil(t, fr.Filtered)
	assert.InDelta(t, 50.0, fr.Filtered.Percent("yes"), 1e-9)
	assert.Equal(t, []string{"age", "job", "y"}, fr.Preview.Columns)
	assert.Len(t, fr.Preview.Rows, 4)

	rec = do(t, s, http.MethodGet, base+"/chart?mode=pie", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cr := decode[chartResponse](t, rec)
	assert.Equal(t, chart.Pie, cr.Mode)
	require.Len(t, cr.Panels, 2)
	assert.Contains(t, cr.Panels[0].URL, "quickchart")

	rec = do(t, s, http.MethodGet, base+"/chart?mode=line", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, base+"/export?format=csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bank_filtered.csv")
	assert.Equal(t, "age,job,y\n30,admin.,no\n35,services,yes\n40,retired,no\n38,admin.,yes\n", rec.Body.String())

	rec = do(t, s, http.MethodGet, base+"/export?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK\x03\x04")))
	back, err := parser.Load(rec.Body.Bytes(), parser.Options{Sheet: "filtered"})
	require.NoError(t, err)
	assert.Equal(t, 4, back.Len())

	rec = do(t, s, http.MethodGet, base+"/export?format=pdf", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, base, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, base, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFunnelEmptySelection(t *testing.T) {
	s := newTestServer(t, 0)
	sess := upload(t, s, "bank.csv", bankCSV)
	base := "/api/sessions/" + sess.ID

	rec := do(t, s, http.MethodPost, base+"/funnel", []byte(`{"selections":{"loan":{"values":[]}}}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fr := decode[funnelResponse](t, rec)
	assert.Equal(t, 0, fr.Rows)
	assert.Nil(t, fr.Filtered)
	assert.Equal(t, pipeline.NoRowsNotice, fr.Notice)

	rec = do(t, s, http.MethodGet, base+"/chart", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cr := decode[chartResponse](t, rec)
	assert.Equal(t, pipeline.NoRowsNotice, cr.Notice)

	rec = do(t, s, http.MethodGet, base+"/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "age,job,marital,loan,y\n", rec.Body.String())
}

func TestFunnelBadRequests(t *testing.T) {
	s := newTestServer(t, 0)
	sess := upload(t, s, "bank.csv", bankCSV)
	base := "/api/sessions/" + sess.ID

	cases := map[string]string{
		"unknown column": `{"selections":{"education":["basic.4y"]}}`,
		"kind mismatch":  `{"ranges":{"job":{"min":1,"max":2}}}`,
		"bad target":     `{"target":"nope"}`,
		"bad json":       `{"ranges":`,
		"unknown field":  `{"filters":{}}`,
	}
	for name, body := range cases {
		rec := do(t, s, http.MethodPost, base+"/funnel", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), `"error"`, name)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, 0)
	s.opt.Addr = "127.0.0.1:0"
	s.opt.PruneEvery = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
