package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	excelize "github.com/xuri/excelize/v2"

	"drug-matcher/internal/config"
	"drug-matcher/internal/matching/service"
	"drug-matcher/internal/store"
)

const referenceCSV = `Drug Code,Brand Name,Generic Name,Strength,Dosage Form,Unit Price
D001,Panadol,Paracetamol,500mg,TABLET,15.50
D002,Zyrtec,Cetirizine,10mg,Syrup,30
D003,Lasix,Furosemide,,Injection,5
`

const candidateCSV = `Item Code;Trade Name;Active Ingredient;Strength;Form;Price
S101;Panadol;Paracetamol;500 mg;Tab;AED 15,60
S102;Ventolin;Salbutamol;100mcg;Inhaler;120
`

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func testRouter(st *store.Store) http.Handler {
	cfg := config.Config{MaxUploadMB: 8, Matching: service.DefaultConfig()}
	r := chi.NewRouter()
	r.Post("/match", Match(cfg, service.DefaultLexicon(), st, zerolog.Nop()))
	r.Get("/sessions/{id}", Session(st, zerolog.Nop()))
	return r
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, f := range files {
		fw, err := mw.CreateFormFile(field, f[0])
		require.NoError(t, err)
		_, err = fw.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postMatch(t *testing.T, h http.Handler, query string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, map[string][2]string{
		"fileA": {"doh.csv", referenceCSV},
		"fileB": {"supplier.csv", candidateCSV},
	})
	req := httptest.NewRequest(http.MethodPost, "/match"+query, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMatchJSON(t *testing.T) {
	st := setupTestStore(t)
	h := testRouter(st)

	rec := postMatch(t, h, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Session struct {
			ID            string `json:"id"`
			ReferenceName string `json:"referenceName"`
			Counters      struct {
				Processed int `json:"processed"`
				Matched   int `json:"matched"`
				Unmatched int `json:"unmatched"`
				Skipped   int `json:"skipped"`
			} `json:"counters"`
		} `json:"session"`
		Outcomes []struct {
			Match *struct {
				Candidate struct {
					Code  string  `json:"code"`
					Price float64 `json:"price"`
				} `json:"candidate"`
				Confidence string `json:"confidence"`
			} `json:"match"`
		} `json:"outcomes"`
		Skipped []struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "doh.csv", resp.Session.ReferenceName)
	assert.Equal(t, 2, resp.Session.Counters.Processed)
	assert.Equal(t, 1, resp.Session.Counters.Matched)
	assert.Equal(t, 1, resp.Session.Counters.Unmatched)
	assert.Equal(t, 1, resp.Session.Counters.Skipped)
	require.Len(t, resp.Outcomes, 2)
	require.NotNil(t, resp.Outcomes[0].Match)
	assert.Equal(t, "S101", resp.Outcomes[0].Match.Candidate.Code)
	assert.InDelta(t, 15.60, resp.Outcomes[0].Match.Candidate.Price, 1e-9)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "D003", resp.Skipped[0].Code)
	assert.Equal(t, rec.Header().Get("X-Session-ID"), resp.Session.ID)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+resp.Session.ID+"?status=all", nil)
	got := httptest.NewRecorder()
	h.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code, got.Body.String())

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &sess))
	assert.Equal(t, 1, sess.Matched)
	assert.Equal(t, 1, sess.Unmatched)
	require.Len(t, sess.Results, 2)
	assert.Equal(t, "D001", sess.Results[0].RefCode)
	assert.Equal(t, 2, sess.Session.Counters.Processed)
	assert.NotNil(t, sess.Session.CompletedAt)
}

func TestMatchXLSX(t *testing.T) {
	rec := postMatch(t, testRouter(nil), "?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Matches", "B2")
	require.NoError(t, err)
	assert.Equal(t, "D001", v)
}

func TestMatchBadConfig(t *testing.T) {
	h := testRouter(nil)

	rec := postMatch(t, h, "", map[string]string{"threshold": "1.5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "threshold")

	rec = postMatch(t, h, "", map[string]string{"weights": "0.5,0.5,0.5,0,0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMatch(t, h, "", map[string]string{"price_max_ratio": "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchMissingFile(t *testing.T) {
	body, ct := multipartBody(t, nil, map[string][2]string{"fileA": {"doh.csv", referenceCSV}})
	req := httptest.NewRequest(http.MethodPost, "/match", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "fileB")
}

func TestSessionNotFound(t *testing.T) {
	h := testRouter(setupTestStore(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/any", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveKey(t *testing.T) {
	rec := map[string]string{"Drug Code": "", "Generic Name (INN)": "", "Unit Price": "", "Brand": ""}
	assert.Equal(t, "Drug Code", resolveKey(rec, "code|drug code"))
	assert.Equal(t, "Generic Name (INN)", resolveKey(rec, "generic|generic name"))
	assert.Equal(t, "Unit Price", resolveKey(rec, "price"))
	assert.Equal(t, "Brand", resolveKey(rec, "Brand"))
	assert.Equal(t, "", resolveKey(rec, "strength"))
	assert.Equal(t, "", resolveKey(rec, ""))
}

func TestResolveKeyTiesAreStable(t *testing.T) {
	rec := map[string]string{
		"generic_name":  "",
		"Generic-Name":  "",
		"Brand Name EN": "",
		"Brand Name AR": "",
	}
	for i := 0; i < 50; i++ {
		require.Equal(t, "Generic-Name", resolveKey(rec, "generic name"))
		require.Equal(t, "Brand Name AR", resolveKey(rec, "brand name"))
	}
}

func TestToRecords(t *testing.T) {
	rows := []map[string]string{
		{"Code": "D1", "Brand": "Panadol", "Generic": "Paracetamol", "Strength": "500mg", "Dosage Form": "Tab", "Price": "1,234.50"},
		{"Code": "Code", "Brand": "Brand", "Generic": "Generic", "Strength": "", "Dosage Form": "", "Price": ""},
		{"Code": "", "Brand": "", "Generic": "", "Strength": "5mg", "Dosage Form": "", "Price": ""},
		{"Code": "D2", "Brand": "", "Generic": "Ibuprofen", "Strength": "", "Dosage Form": "", "Price": "n/a"},
	}
	recs := toRecords(rows, defaultMapping())
	require.Len(t, recs, 2)
	assert.Equal(t, "Panadol", recs[0].BrandName)
	assert.Equal(t, "Tab", recs[0].DosageForm)
	assert.InDelta(t, 1234.5, recs[0].Price, 1e-9)
	assert.Equal(t, "D2", recs[1].Code)
	assert.False(t, recs[1].HasPrice())
}
