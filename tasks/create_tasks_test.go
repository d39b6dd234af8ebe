package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"markd/internal/store"
)

func writeProducts(t *testing.T, st *store.Store, codes string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(st.Dir(), "products.txt"), []byte(codes), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTasks_PersistsPendingQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		code := int(payload["productGroupCode"].(float64))
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("task-%d", code)})
	}))
	defer server.Close()

	st := store.New(t.TempDir())
	writeProducts(t, st, "2\n5\n")

	cert := "ООО Ромашка - ТЦ-1"
	created, err := CreateTasks(context.Background(), NewTrueAPIClient(server.URL), st, cert, "tok")
	if err != nil {
		t.Fatalf("CreateTasks() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %+v, want 2 tasks", created)
	}

	pending, err := st.ReadPending(cert)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %+v, want 2", pending)
	}
	if pending[0].TaskID != "task-2" || pending[0].GroupCode != 2 {
		t.Errorf("pending[0] = %+v", pending[0])
	}
	if pending[1].TaskID != "task-5" || pending[1].GroupCode != 5 {
		t.Errorf("pending[1] = %+v", pending[1])
	}
}

func TestCreateTasks_SkipsFailedGroups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if int(payload["productGroupCode"].(float64)) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "task-ok"})
	}))
	defer server.Close()

	st := store.New(t.TempDir())
	writeProducts(t, st, "2\n5\n")

	created, err := CreateTasks(context.Background(), NewTrueAPIClient(server.URL), st, "cert", "tok")
	if err != nil {
		t.Fatalf("CreateTasks() error = %v", err)
	}
	if len(created) != 1 || created[0].GroupCode != 5 {
		t.Errorf("created = %+v, want only group 5", created)
	}
}

func TestCreateTasks_AllGroupsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	st := store.New(t.TempDir())
	writeProducts(t, st, "2\n")

	cert := "cert"
	created, err := CreateTasks(context.Background(), NewTrueAPIClient(server.URL), st, cert, "tok")
	if err != nil {
		t.Fatalf("CreateTasks() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %+v, want none", created)
	}

	// Nothing created means the previous queue is left alone.
	pending, err := st.ReadPending(cert)
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Errorf("pending = %+v, want nil", pending)
	}
}
