package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/eliaszeru/Excel-splitter/output"
	"github.com/eliaszeru/Excel-splitter/split"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Port:         "0",
		UploadFolder: filepath.Join(dir, "uploads"),
		OutputFolder: filepath.Join(dir, "outputs"),
		MaxFileSize:  1 << 20,
		SessionTTL:   time.Hour,
		SplitWorkers: 2,
		Collision:    split.CollisionOverwrite,
	}
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	return s
}

// productsCSV is a 100-row product table: 40 Men, 35 Women, 25 Unisex
func productsCSV() []byte {
	var b strings.Builder
	b.WriteString("Product_ID,Gender,Season,Stock\n")
	seasons := []string{"Spring", "Summer", "Fall", "Winter"}
	for i := 0; i < 100; i++ {
		gender := "Unisex"
		switch {
		case i < 40:
			gender = "Men"
		case i < 75:
			gender = "Women"
		}
		fmt.Fprintf(&b, "PROD%03d,%s,%s,%d\n", i+1, gender, seasons[i%4], i%10)
	}
	return []byte(b.String())
}

func upload(t *testing.T, s *Server, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response failed: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func mustUpload(t *testing.T, s *Server) UploadResponse {
	t.Helper()
	rec := upload(t, s, "products.csv", productsCSV())
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[UploadResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "healthy" || resp.Database != "" {
		t.Errorf("health = %+v", resp)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	for _, key := range []string{"files_written", "rules_failed", "total_4xx_errors"} {
		if _, ok := m[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
}

// TestUpload_ColumnSummary verifies the upload response describes the dataset
func TestUpload_ColumnSummary(t *testing.T) {
	s := newTestServer(t)
	resp := mustUpload(t, s)

	if !resp.Success || resp.SessionID == "" || resp.TotalRows != 100 {
		t.Fatalf("upload response = %+v", resp)
	}
	if diff := cmp.Diff([]string{"Product_ID", "Gender", "Season", "Stock"}, resp.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Men", "Women", "Unisex"}, resp.ColumnValues["Gender"]); diff != "" {
		t.Errorf("Gender values mismatch (-want +got):\n%s", diff)
	}
	if got := len(resp.ColumnValues["Product_ID"]); got != 50 {
		t.Errorf("Product_ID values = %d, want capped at 50", got)
	}

	entries, err := os.ReadDir(s.config.UploadFolder)
	if err != nil || len(entries) != 1 || entries[0].Name() != resp.SessionID+"_products.csv" {
		t.Errorf("upload folder = %v, %v", entries, err)
	}
}

func TestUpload_XLSX(t *testing.T) {
	s := newTestServer(t)

	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"Region", "Sales"})
	f.SetSheetRow("Sheet1", "A2", &[]any{"North", 10})
	f.SetSheetRow("Sheet1", "A3", &[]any{"South", 20})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	f.Close()

	rec := upload(t, s, "sales.xlsx", buf.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[UploadResponse](t, rec)
	if resp.TotalRows != 2 || len(resp.Columns) != 2 {
		t.Errorf("upload response = %+v", resp)
	}
}

func TestUpload_Rejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
	}{
		{"wrong extension", "notes.txt", []byte("hello"), http.StatusBadRequest},
		{"legacy xls", "old.xls", []byte("x"), http.StatusBadRequest},
		{"too large", "big.csv", bytes.Repeat([]byte("a"), (1<<20)+10), http.StatusRequestEntityTooLarge},
		{"unreadable workbook", "broken.xlsx", []byte("not a zip"), http.StatusBadRequest},
		{"header only", "empty.csv", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, s, tt.filename, tt.content)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Error == "" {
				t.Error("error message missing")
			}
			if strings.HasSuffix(tt.filename, ".xls") && !strings.Contains(resp.Error, ".xls workbooks are not supported") {
				t.Errorf("error = %q, want it to name unsupported .xls", resp.Error)
			}
		})
	}

	// Rejected uploads leave nothing behind
	entries, _ := os.ReadDir(s.config.UploadFolder)
	if len(entries) != 0 {
		t.Errorf("upload folder not empty: %v", entries)
	}
}

func TestUpload_NoFile(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestProcess_EndToEnd runs upload, split, download, history and cleanup in order
func TestProcess_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	up := mustUpload(t, s)

	body := map[string]any{
		"session_id": up.SessionID,
		"rules": []map[string]any{
			{"rule_type": "single", "column1": "Gender", "value1": []string{"Men"}},
			{"rule_type": "and", "column1": "Season", "value1": "Winter", "column2": "Gender", "value2": "Men", "custom_name": "winter_mens"},
			{"rule_type": "single", "column1": "Foo", "value1": "x"},
			{"rule_type": "single", "column1": "Gender", "value1": "Kids"},
			{"rule_type": "single", "column1": "Stock", "value1": []int{0}},
		},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/process", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[split.Response](t, rec)

	prefix := "/api/v1/download/" + up.SessionID + "/"
	wantFiles := []split.GeneratedFile{
		{Name: "Gender_Men.csv", Rows: 40, Reference: output.Reference(prefix + "Gender_Men.csv")},
		{Name: "winter_mens.csv", Rows: 10, Reference: output.Reference(prefix + "winter_mens.csv")},
		{Name: "Stock_0.csv", Rows: 10, Reference: output.Reference(prefix + "Stock_0.csv")},
	}
	if diff := cmp.Diff(wantFiles, resp.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if !resp.Success || resp.TotalFiles != 3 || resp.RulesSkipped != 1 || resp.RulesFailed != 1 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].RuleIndex != 2 || !strings.Contains(resp.Failures[0].Error, "Foo") {
		t.Errorf("failures = %+v", resp.Failures)
	}

	// Download
	dl := doJSON(t, s, http.MethodGet, prefix+"winter_mens.csv", nil)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d", dl.Code)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, "winter_mens.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(dl.Body.String()), "\n")
	if len(lines) != 11 || lines[0] != "Product_ID,Gender,Season,Stock" {
		t.Errorf("downloaded %d lines, header %q", len(lines), lines[0])
	}

	// History
	runsRec := doJSON(t, s, http.MethodGet, "/api/v1/sessions/"+up.SessionID+"/runs", nil)
	if runsRec.Code != http.StatusOK {
		t.Fatalf("runs status = %d", runsRec.Code)
	}
	runs := decode[RunsResponse](t, runsRec)
	if len(runs.Runs) != 1 || runs.Runs[0].TotalFiles != 3 || runs.Runs[0].RuleCount != 5 || runs.Runs[0].Source != "products.csv" {
		t.Errorf("runs = %+v", runs.Runs)
	}

	// Cleanup
	cl := doJSON(t, s, http.MethodPost, "/api/v1/cleanup", CleanupRequest{SessionID: up.SessionID})
	if cl.Code != http.StatusOK || !decode[CleanupResponse](t, cl).Removed {
		t.Fatalf("cleanup status = %d", cl.Code)
	}
	if _, err := os.Stat(filepath.Join(s.config.UploadFolder, up.SessionID+"_products.csv")); !os.IsNotExist(err) {
		t.Errorf("upload still present after cleanup: %v", err)
	}

	again := doJSON(t, s, http.MethodPost, "/api/v1/process", body)
	if again.Code != http.StatusNotFound {
		t.Errorf("process after cleanup status = %d, want 404", again.Code)
	}
}

func TestProcess_Errors(t *testing.T) {
	s := newTestServer(t)
	up := mustUpload(t, s)

	tooMany := make([]map[string]any, 501)
	for i := range tooMany {
		tooMany[i] = map[string]any{"rule_type": "single", "column1": "Gender", "value1": "Men"}
	}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"no rules", map[string]any{"session_id": up.SessionID, "rules": []any{}}, http.StatusBadRequest},
		{"missing rules", map[string]any{"session_id": up.SessionID}, http.StatusBadRequest},
		{"too many rules", map[string]any{"session_id": up.SessionID, "rules": tooMany}, http.StatusBadRequest},
		{"missing session", map[string]any{"rules": tooMany[:1]}, http.StatusBadRequest},
		{"unknown session", map[string]any{"session_id": "nope", "rules": tooMany[:1]}, http.StatusNotFound},
		{"malformed value", map[string]any{"session_id": up.SessionID, "rules": []map[string]any{{"rule_type": "single", "column1": "A", "value1": true}}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/process", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/process", map[string]any{"session_id": up.SessionID, "rules": []any{}})
	if msg := decode[ErrorResponse](t, rec).Error; msg != split.ErrNoRulesProvided.Error() {
		t.Errorf("error = %q, want %q", msg, split.ErrNoRulesProvided.Error())
	}
}

func TestDownload_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/download/some-session/missing.xlsx", http.StatusNotFound},
		{"/api/v1/download/some-session/..%2Fsecret.csv", http.StatusBadRequest},
		{"/api/v1/download/some-session/..", http.StatusBadRequest},
		{"/api/v1/download/..%2F..%2Fetc/passwd", http.StatusBadRequest},
		{"/api/v1/download/../x.csv", http.StatusBadRequest},
		{"/api/v1/download/Gender_Men.csv", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodGet, tt.path, nil)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestCleanup_UnknownSession(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/cleanup", CleanupRequest{SessionID: "nope"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[CleanupResponse](t, rec); !resp.Success || resp.Removed {
		t.Errorf("cleanup = %+v", resp)
	}

	empty := doJSON(t, s, http.MethodPost, "/api/v1/cleanup", nil)
	if empty.Code != http.StatusOK {
		t.Errorf("cleanup without body status = %d", empty.Code)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sessions/none/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"runs":[]`) {
		t.Errorf("body = %s, want empty runs list", rec.Body.String())
	}
}

// TestSessionExpiryRemovesFiles verifies the eviction hook deletes the stored
// upload and the session's outputs
func TestSessionExpiryRemovesFiles(t *testing.T) {
	s := newTestServer(t)
	up := mustUpload(t, s)
	path := filepath.Join(s.config.UploadFolder, up.SessionID+"_products.csv")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/process", map[string]any{
		"session_id": up.SessionID,
		"rules":      []map[string]any{{"rule_type": "single", "column1": "Gender", "value1": "Men"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d", rec.Code)
	}
	outDir := filepath.Join(s.config.OutputFolder, up.SessionID)
	if _, err := os.Stat(filepath.Join(outDir, "Gender_Men.csv")); err != nil {
		t.Fatalf("output missing: %v", err)
	}

	sess, err := s.sessions.Delete(up.SessionID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	s.removeSessionFiles(*sess)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("upload still present: %v", err)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("outputs still present: %v", err)
	}
}

// TestDownload_SessionsIsolated verifies two sessions producing the same
// output name each download their own rows
func TestDownload_SessionsIsolated(t *testing.T) {
	s := newTestServer(t)

	uploadCSV := func(content string) string {
		rec := upload(t, s, "people.csv", []byte(content))
		if rec.Code != http.StatusOK {
			t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
		}
		return decode[UploadResponse](t, rec).SessionID
	}
	alice := uploadCSV("Gender,Secret\nMen,alice-data\n")
	bob := uploadCSV("Gender,Secret\nMen,bob-data\n")

	refs := map[string]string{}
	for _, id := range []string{alice, bob} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/process", map[string]any{
			"session_id": id,
			"rules":      []map[string]any{{"rule_type": "single", "column1": "Gender", "value1": "Men"}},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("process status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decode[split.Response](t, rec)
		if len(resp.Files) != 1 || resp.Files[0].Name != "Gender_Men.csv" {
			t.Fatalf("files = %+v", resp.Files)
		}
		refs[id] = string(resp.Files[0].Reference)
	}
	if refs[alice] == refs[bob] {
		t.Fatalf("sessions share download url %q", refs[alice])
	}

	for id, want := range map[string]string{
		alice: "Gender,Secret\nMen,alice-data\n",
		bob:   "Gender,Secret\nMen,bob-data\n",
	} {
		rec := doJSON(t, s, http.MethodGet, refs[id], nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("download status = %d", rec.Code)
		}
		if got := rec.Body.String(); got != want {
			t.Errorf("session %s downloaded %q, want %q", id, got, want)
		}
	}
}

func TestUploadName(t *testing.T) {
	tests := map[string]string{
		"products.xlsx":             "products.xlsx",
		`C:\Users\me\products.xlsx`: "products.xlsx",
		"../../etc/passwd.csv":      "passwd.csv",
		"a:b.csv":                   "a_b.csv",
		".csv":                      "upload.csv",
	}
	for in, want := range tests {
		if got := uploadName(in); got != want {
			t.Errorf("uploadName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"PORT":           "9090",
		"UPLOAD_FOLDER":  "/data/up",
		"MAX_FILE_SIZE":  "1024",
		"SESSION_TTL":    "30m",
		"SPLIT_WORKERS":  "3",
		"NAME_COLLISION": "suffix",
	}
	cfg, err := loadConfig(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	want := Config{
		Port:         "9090",
		UploadFolder: "/data/up",
		OutputFolder: "/data/up",
		MaxFileSize:  1024,
		SessionTTL:   30 * time.Minute,
		SplitWorkers: 3,
		Collision:    split.CollisionSuffix,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	defaults, err := loadConfig(func(string) string { return "" })
	if err != nil {
		t.Fatalf("loadConfig() defaults failed: %v", err)
	}
	if defaults.Port != "8080" || defaults.MaxFileSize != 16<<20 || defaults.SessionTTL != time.Hour || defaults.Collision != split.CollisionOverwrite {
		t.Errorf("defaults = %+v", defaults)
	}

	for _, bad := range []map[string]string{
		{"MAX_FILE_SIZE": "big"},
		{"SESSION_TTL": "soon"},
		{"SPLIT_WORKERS": "-1"},
		{"NAME_COLLISION": "rename"},
	} {
		if _, err := loadConfig(func(k string) string { return bad[k] }); err == nil {
			t.Errorf("loadConfig(%v) expected error", bad)
		}
	}
}
