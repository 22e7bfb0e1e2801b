package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/funnelboard/internal/analysis"
	"github.com/KaramelBytes/funnelboard/internal/chart"
	"github.com/KaramelBytes/funnelboard/internal/export"
	"github.com/KaramelBytes/funnelboard/internal/funnel"
	"github.com/KaramelBytes/funnelboard/internal/parser"
	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/session"
	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const previewRows = 20

type sessionResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Rows      int              `json:"rows"`
	CreatedAt time.Time        `json:"created_at"`
	Target    string           `json:"target"`
	Profile   *analysis.Report `json:"profile"`
	Spec      funnel.Spec      `json:"spec"`
}

type funnelRequest struct {
	Ranges     map[string]funnel.Range     `json:"ranges"`
	Selections map[string]funnel.Selection `json:"selections"`
	Target     string                      `json:"target"`
	Columns    []string                    `json:"columns"`
}

type preview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type funnelResponse struct {
	Rows       int                    `json:"rows"`
	RawRows    int                    `json:"raw_rows"`
	Raw        analysis.Distribution  `json:"raw"`
	Filtered   *analysis.Distribution `json:"filtered"`
	Comparison analysis.Comparison    `json:"comparison"`
	Notice     string                 `json:"notice,omitempty"`
	Preview    preview                `json:"preview"`
}

type chartPanel struct {
	Title  string       `json:"title"`
	Config chart.Config `json:"config"`
	URL    string       `json:"url"`
}

type chartResponse struct {
	Mode   chart.Mode   `json:"mode"`
	Notice string       `json:"notice,omitempty"`
	Panels []chartPanel `json:"panels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUploadBytes)
	name, data, err := readUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	raw, err := parser.Load(data, s.opt.Parse)
	if err != nil {
		var fe *parser.FormatError
		if errors.As(err, &fe) {
			s.log.WithError(err).WithField("name", name).Warn("upload rejected")
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess := s.store.Create(name, raw)
	s.log.WithFields(logrus.Fields{"session": sess.ID, "rows": raw.Len(), "name": name}).Info("session created")
	writeJSON(w, http.StatusCreated, s.describe(*sess))
}

// readUpload accepts a multipart "file" field or a raw request body.
func readUpload(r *http.Request) (string, []byte, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("multipart field %q: %w", "file", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return filepath.Base(hdr.Filename), data, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	return filepath.Base(name), data, nil
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.describe(sess))
}

func (s *Server) describe(sess session.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID,
		Name:      sess.Name,
		Rows:      sess.Raw.Len(),
		CreatedAt: sess.CreatedAt,
		Target:    s.opt.TargetColumn,
		Profile:   analysis.Profile(sess.Name, sess.Raw, analysis.DefaultOptions()),
		Spec:      funnel.Default(sess.Raw, s.opt.RangeColumn, s.opt.FunnelColumns),
	}
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req funnelRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode funnel request: %w", err))
		return
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		target = s.opt.TargetColumn
	}

	res, err := s.pipe.Run(r.Context(), pipeline.Request{
		Source:     sess.Raw,
		SourceHash: sess.Hash,
		Spec:       funnel.Spec{Ranges: req.Ranges, Selections: req.Selections},
		Target:     target,
		Columns:    req.Columns,
	})
	switch {
	case errors.Is(err, table.ErrUnknownColumn), errors.Is(err, funnel.ErrKindMismatch):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, pipeline.ErrEmptySource):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.store.Update(sess.ID, res); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	head := res.Filtered.Head(previewRows)
	pv := preview{Columns: head.Names(), Rows: make([][]string, head.Len())}
	for i := range pv.Rows {
		pv.Rows[i] = head.Record(i)
	}
	writeJSON(w, http.StatusOK, funnelResponse{
		Rows:       res.Filtered.Len(),
		RawRows:    res.RawRows,
		Raw:        res.Raw,
		Filtered:   res.FilteredDist,
		Comparison: res.Comparison,
		Notice:     res.Notice,
		Preview:    pv,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.Last == nil {
		writeError(w, http.StatusConflict, errors.New("no funnel evaluated for this session yet"))
		return
	}
	mode := s.opt.ChartMode
	if q := r.URL.Query().Get("mode"); q != "" {
		m, err := chart.ParseMode(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		mode = m
	}
	c, err := chart.Build(sess.Last.Comparison, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	urls, err := c.URLs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := chartResponse{Mode: c.Mode, Notice: c.Notice, Panels: make([]chartPanel, len(c.Panels))}
	for i, p := range c.Panels {
		resp.Panels[i] = chartPanel{Title: p.Title, Config: p.Config, URL: urls[i]}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	t := sess.Raw
	if sess.Last != nil {
		t = sess.Last.Filtered
	}
	base := strings.TrimSuffix(sess.Name, filepath.Ext(sess.Name)) + "_filtered"

	var (
		data       []byte
		ctype, ext string
		err        error
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "csv":
		data, err = export.CSV(t)
		ctype, ext = "text/csv; charset=utf-8", ".csv"
	case "xlsx":
		data, err = export.XLSX(t, s.opt.SheetName)
		ctype, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported export format %q (want csv or xlsx)", format))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base + ext}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return session.Session{}, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
