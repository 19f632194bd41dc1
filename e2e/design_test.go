package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

const validDesignBody = `{
	"name": "Portrait of Ada",
	"imageData": "iVBORw0KGgoAAAANSUhEUg==",
	"params": {
		"num_nails": 256,
		"radius_cm": 30.0,
		"max_lines": 3000
	}
}`

func createDesign(t *testing.T, ta *testApp) map[string]interface{} {
	t.Helper()
	resp, err := doAuthRequest(t, ta, http.MethodPost, "/api/designs/", validDesignBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return parseJSON(t, resp)
}

func TestDesignCreate(t *testing.T) {
	ta := setupApp(t)

	design := createDesign(t, ta)

	if design["id"] == "" || design["id"] == nil {
		t.Error("expected design id to be set")
	}
	if design["name"] != "Portrait of Ada" {
		t.Errorf("expected name 'Portrait of Ada', got %v", design["name"])
	}
	if design["userId"] != "test-user-123" {
		t.Errorf("expected userId from token, got %v", design["userId"])
	}
	if design["imageUrl"] == "" || design["imageUrl"] == nil {
		t.Error("expected imageUrl to be set (mock storage)")
	}
}

func TestDesignCreate_Unauthenticated(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/designs/", validDesignBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestDesignCreate_InvalidParams(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"name": "Too few nails",
		"imageData": "iVBORw0KGgo=",
		"params": {"num_nails": 10, "radius_cm": 30.0}
	}`
	resp, err := doAuthRequest(t, ta, http.MethodPost, "/api/designs/", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestDesignGet(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/designs/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	design := parseJSON(t, resp)
	if design["id"] != id {
		t.Errorf("expected design %s, got %v", id, design["id"])
	}
}

func TestDesignGet_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/designs/no-such-design", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestDesignGet_OtherUsersDesign(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	// Same design fetched as a different user must look like it doesn't exist
	token := generateTokenFor(t, ta, "other-user-456", "other@example.com")
	resp, err := doRequest(ta.app, http.MethodGet, "/api/designs/"+id, "", map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestDesignList(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/designs/", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	designs, ok := body["designs"].([]interface{})
	if !ok {
		t.Fatalf("expected 'designs' array, got %T", body["designs"])
	}

	found := false
	for _, d := range designs {
		if m, ok := d.(map[string]interface{}); ok && m["id"] == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected design %s in listing", id)
	}
}

func TestDesignUpdate(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	body := `{"name": "Renamed", "sequence": [0, 12, 77, 140, 3]}`
	resp, err := doAuthRequest(t, ta, http.MethodPut, "/api/designs/"+id, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	design := parseJSON(t, resp)
	if design["name"] != "Renamed" {
		t.Errorf("expected name 'Renamed', got %v", design["name"])
	}

	seq, ok := design["sequence"].([]interface{})
	if !ok || len(seq) != 5 {
		t.Errorf("expected 5-element sequence, got %v", design["sequence"])
	}
	if design["sequenceUrl"] == "" || design["sequenceUrl"] == nil {
		t.Error("expected sequenceUrl after a sequence update")
	}
}

func TestDesignDelete(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	resp, err := doAuthRequest(t, ta, http.MethodDelete, "/api/designs/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)

	// Gone afterwards
	resp, err = doAuthRequest(t, ta, http.MethodGet, "/api/designs/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDesignCreate_LargeSequenceRoundTrip(t *testing.T) {
	ta := setupApp(t)

	created := createDesign(t, ta)
	id := created["id"].(string)

	seq := make([]int, 500)
	for i := range seq {
		seq[i] = (i * 37) % 256
	}
	seqJSON, _ := json.Marshal(seq)
	body := fmt.Sprintf(`{"sequence": %s}`, seqJSON)

	resp, err := doAuthRequest(t, ta, http.MethodPut, "/api/designs/"+id, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doAuthRequest(t, ta, http.MethodGet, "/api/designs/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	design := parseJSON(t, resp)
	got, ok := design["sequence"].([]interface{})
	if !ok || len(got) != 500 {
		t.Fatalf("expected 500-element sequence back, got %d", len(got))
	}
}
