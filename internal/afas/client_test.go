package afas

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEncodeToken(t *testing.T) {
	if got := EncodeToken("abc"); got != "AfasToken YWJj" {
		t.Errorf("unexpected header %q", got)
	}
}

func TestURLs(t *testing.T) {
	c := New(Config{EnvironmentID: "12345", Token: "t"})
	if got := c.ConnectorURL("Dossiers_per_project"); got != "https://12345.rest.afas.online/ProfitRestServices/connectors/Dossiers_per_project?skip=-1&take=-1" {
		t.Errorf("unexpected connector url %s", got)
	}
	if got := c.FileURL("F1", "Tekening A.pdf"); got != "https://12345.rest.afas.online/ProfitRestServices/fileconnector/F1/Tekening%20A.pdf" {
		t.Errorf("unexpected file url %s", got)
	}
}

func TestRowValue(t *testing.T) {
	var r Row
	json.Unmarshal([]byte(`{"Project":"P-1","Dossieritem":1024,"Naam":null}`), &r)

	if r.Value("Project") != "P-1" {
		t.Errorf("Project = %q", r.Value("Project"))
	}
	if r.Value("Dossieritem") != "1024" {
		t.Errorf("Dossieritem = %q", r.Value("Dossieritem"))
	}
	if r.Value("Naam") != "" || r.Value("missing") != "" {
		t.Error("null and missing fields should be empty")
	}
}

func TestFilters(t *testing.T) {
	var rows []Row
	json.Unmarshal([]byte(`[
		{"Project":"P-1","Dossieritem":1},
		{"Project":"P-2","Dossieritem":2},
		{"Project":"P-1","Dossieritem":3}
	]`), &rows)

	if got := FilterEq(rows, "Project", "P-1"); len(got) != 2 {
		t.Errorf("FilterEq: expected 2 rows, got %d", len(got))
	}
	got := FilterIn(rows, "Dossieritem", []string{"2", "3"})
	if len(got) != 2 || got[0].Value("Project") != "P-2" {
		t.Errorf("FilterIn: unexpected rows %v", got)
	}
}

func TestRowsAndDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "AfasToken dG9rZW4=" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/ProfitRestServices/connectors/Files":
			if r.URL.Query().Get("take") != "-1" {
				t.Errorf("expected take=-1, got %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"rows":[{"Naam":"a.pdf","Bijlage":"B1"}]}`))
		case "/ProfitRestServices/fileconnector/B1/a.pdf":
			w.Write([]byte(`{"filename":"a.pdf","mimetype":"application/pdf","filedata":"JVBERg=="}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := New(Config{Token: "token", BaseURL: ts.URL})

	rows, err := c.Rows(context.Background(), "Files")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Value("Bijlage") != "B1" {
		t.Fatalf("unexpected rows %v", rows)
	}

	att, err := c.Download(context.Background(), "B1", "a.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if att.MimeType != "application/pdf" || att.FileData != "JVBERg==" {
		t.Errorf("unexpected attachment %+v", att)
	}

	if _, err := c.Download(context.Background(), "missing", "x.pdf"); !errors.Is(err, ErrStatus) {
		t.Errorf("expected ErrStatus, got %v", err)
	}
}
