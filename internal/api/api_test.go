package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/realtime"
	"github.com/starford/staykeep/internal/store"
	"github.com/starford/staykeep/internal/testutil"
)

// testEnv sets up a temp SQLite DB, blob root and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*store.DB, http.Handler) {
	t.Helper()
	mode := identity.ModeDisabled
	if authToken != "" {
		mode = identity.ModeToken
	}
	db, router, _ := testEnvFull(t, identity.NewAuthenticator(mode, authToken, ""), nil)
	return db, router
}

func testEnvFull(t *testing.T, auth *identity.Authenticator, events http.Handler) (*store.DB, http.Handler, string) {
	t.Helper()
	db := testutil.TestDB(t)
	root, blobs := testutil.TestBlobs(t, "/files")
	router := NewRouter(Config{Store: db, Auth: auth, Blobs: blobs, Events: events})
	return db, router, root
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndGetProperty(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/properties", map[string]any{"name": "Beach House", "city": "Tofino"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decodeBody[models.Property](t, w)
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("created = %+v, want id and timestamps", created)
	}

	w = do(t, router, http.MethodGet, "/properties/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeBody[models.Property](t, w)
	if got.Name != "Beach House" || got.City != "Tofino" {
		t.Errorf("got = %+v", got)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	_, router := testEnv(t, "")

	created := decodeBody[models.Property](t, do(t, router, http.MethodPost, "/properties", map[string]any{"name": "Cabin"}))

	w := do(t, router, http.MethodPatch, "/properties/"+created.ID, map[string]any{"name": "Lake Cabin"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[models.Property](t, w); got.Name != "Lake Cabin" {
		t.Errorf("name = %q", got.Name)
	}

	w = do(t, router, http.MethodDelete, "/properties/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/properties/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"unknown table", http.MethodGet, "/widgets", nil, http.StatusNotFound},
		{"missing row", http.MethodGet, "/properties/nope", nil, http.StatusNotFound},
		{"validation", http.MethodPost, "/properties", map[string]any{"city": "x"}, http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/inventory_items?order=price", nil, http.StatusBadRequest},
		{"bad mode", http.MethodGet, "/inventory_items?mode=everything", nil, http.StatusBadRequest},
		{"patch missing", http.MethodPatch, "/properties/nope", map[string]any{"name": "x"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, tc.method, tc.target, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
			if e := decodeBody[errResponse](t, w); e.Error == "" {
				t.Error("error body is empty")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/properties", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestDuplicateCategory(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/inventory_categories", map[string]any{"name": "Linens"}); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	w := do(t, router, http.MethodPost, "/inventory_categories", map[string]any{"name": "linens"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestListScoping(t *testing.T) {
	_, router := testEnv(t, "")

	p1 := decodeBody[models.Property](t, do(t, router, http.MethodPost, "/properties", map[string]any{"name": "A"}))
	p2 := decodeBody[models.Property](t, do(t, router, http.MethodPost, "/properties", map[string]any{"name": "B"}))
	for _, it := range []map[string]any{
		{"name": "Towels", "property_id": p1.ID},
		{"name": "Soap", "property_id": p2.ID},
		{"name": "Spare keys"},
	} {
		if w := do(t, router, http.MethodPost, "/inventory_items", it); w.Code != http.StatusCreated {
			t.Fatalf("create item = %d, body = %s", w.Code, w.Body.String())
		}
	}

	cases := map[string][]string{}
	cases["/inventory_items?order=name"] = []string{"Soap", "Spare keys", "Towels"}
	cases["/inventory_items?mode=unassigned"] = []string{"Spare keys"}
	cases["/inventory_items?mode=property&property_id="+p1.ID] = []string{"Towels"}
	cases["/inventory_items?property_id="+p2.ID] = []string{"Soap"}
	cases["/inventory_items?order=name&limit=1&offset=1"] = []string{"Spare keys"}
	for target, want := range cases {
		w := do(t, router, http.MethodGet, target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", target, w.Code)
		}
		resp := decodeBody[ListResponse](t, w)
		var names []string
		for _, raw := range resp.Items {
			var it models.InventoryItem
			_ = json.Unmarshal(raw, &it)
			names = append(names, it.Name)
		}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("%s = %v, want %v", target, names, want)
		}
		if resp.Count != len(want) {
			t.Errorf("%s count = %d", target, resp.Count)
		}
	}
}

func TestAuthMiddleware_Token(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/properties", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/properties", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/properties", nil, "Authorization", "Bearer secret123"); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/properties?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestStaffSeesAssignedProperties(t *testing.T) {
	auth := identity.NewAuthenticator(identity.ModeJWT, "", "jwt-secret")
	db, router, _ := testEnvFull(t, auth, nil)
	ctx := context.Background()

	insert := func(table string, v any) models.Meta {
		raw, _ := json.Marshal(v)
		doc, err := db.Insert(ctx, table, raw)
		if err != nil {
			t.Fatalf("insert %s: %v", table, err)
		}
		var m models.Meta
		_ = json.Unmarshal(doc, &m)
		return m
	}
	p1 := insert(models.TableProperties, map[string]any{"name": "Assigned"})
	insert(models.TableProperties, map[string]any{"name": "Hidden"})
	prof := insert(models.TableProfiles, map[string]any{"user_id": "u-staff", "role": "staff"})
	insert(models.TablePropertyAssignments, map[string]any{"profile_id": prof.ID, "property_id": p1.ID})

	staff, err := auth.Issue(identity.User{UserID: "u-staff", ProfileID: prof.ID, Role: models.RoleStaff}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := auth.Issue(identity.User{UserID: "u-owner", Role: models.RoleOwner}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/properties", nil, "Authorization", "Bearer "+staff)
	if got := decodeBody[ListResponse](t, w); got.Count != 1 {
		t.Errorf("staff sees %d properties, want 1", got.Count)
	}
	w = do(t, router, http.MethodGet, "/properties", nil, "Authorization", "Bearer "+owner)
	if got := decodeBody[ListResponse](t, w); got.Count != 2 {
		t.Errorf("owner sees %d properties, want 2", got.Count)
	}

	w = do(t, router, http.MethodPost, "/properties", map[string]any{"name": "New"}, "Authorization", "Bearer "+staff)
	if w.Code != http.StatusForbidden {
		t.Errorf("staff create property = %d, want 403", w.Code)
	}
	w = do(t, router, http.MethodPost, "/inventory_items", map[string]any{"name": "Soap", "property_id": p1.ID}, "Authorization", "Bearer "+staff)
	if w.Code != http.StatusCreated {
		t.Errorf("staff create item = %d, want 201", w.Code)
	}

	w = do(t, router, http.MethodGet, "/me", nil, "Authorization", "Bearer "+staff)
	me := decodeBody[MeResponse](t, w)
	if me.User.Role != models.RoleStaff || me.Profile == nil || me.Profile.ID != prof.ID {
		t.Errorf("me = %+v", me)
	}
}

// staffFixture seeds two properties, one assigned to a staff profile, with
// an inventory item in each. It returns the staff and owner bearer headers.
type staffFixture struct {
	db                  *store.DB
	router              http.Handler
	assigned, hidden    string
	ownItem, hiddenItem string
	staff, owner        []string
}

func newStaffFixture(t *testing.T, events http.Handler) staffFixture {
	t.Helper()
	auth := identity.NewAuthenticator(identity.ModeJWT, "", "jwt-secret")
	db, router, _ := testEnvFull(t, auth, events)
	ctx := context.Background()

	insert := func(table string, v any) string {
		raw, _ := json.Marshal(v)
		doc, err := db.Insert(ctx, table, raw)
		if err != nil {
			t.Fatalf("insert %s: %v", table, err)
		}
		var m models.Meta
		if err := json.Unmarshal(doc, &m); err != nil {
			t.Fatal(err)
		}
		return m.ID
	}
	f := staffFixture{db: db, router: router}
	f.assigned = insert(models.TableProperties, map[string]any{"name": "Assigned"})
	f.hidden = insert(models.TableProperties, map[string]any{"name": "Hidden"})
	prof := insert(models.TableProfiles, map[string]any{"user_id": "u-staff", "role": "staff"})
	insert(models.TablePropertyAssignments, map[string]any{"profile_id": prof, "property_id": f.assigned})
	f.ownItem = insert(models.TableInventoryItems, map[string]any{"name": "Towels", "property_id": f.assigned})
	f.hiddenItem = insert(models.TableInventoryItems, map[string]any{"name": "Hidden safe code", "property_id": f.hidden})

	staff, err := auth.Issue(identity.User{UserID: "u-staff", ProfileID: prof, Role: models.RoleStaff}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := auth.Issue(identity.User{UserID: "u-owner", Role: models.RoleOwner}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	f.staff = []string{"Authorization", "Bearer " + staff}
	f.owner = []string{"Authorization", "Bearer " + owner}
	return f
}

func TestStaffCannotReachHiddenPropertyRows(t *testing.T) {
	f := newStaffFixture(t, nil)
	r := f.router

	w := do(t, r, http.MethodGet, "/inventory_items", nil, f.staff...)
	got := decodeBody[ListResponse](t, w)
	if got.Count != 1 || !strings.Contains(string(got.Items[0]), "Towels") {
		t.Errorf("staff item list = %s", w.Body.String())
	}
	w = do(t, r, http.MethodGet, "/inventory_items?property_id="+f.hidden, nil, f.staff...)
	if got := decodeBody[ListResponse](t, w); got.Count != 0 {
		t.Errorf("staff list of hidden property = %d rows, want 0", got.Count)
	}
	w = do(t, r, http.MethodGet, "/inventory_items", nil, f.owner...)
	if got := decodeBody[ListResponse](t, w); got.Count != 2 {
		t.Errorf("owner item list = %d rows, want 2", got.Count)
	}

	if w := do(t, r, http.MethodGet, "/properties/"+f.hidden, nil, f.staff...); w.Code != http.StatusNotFound {
		t.Errorf("GET hidden property = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/inventory_items/"+f.hiddenItem, nil, f.staff...); w.Code != http.StatusNotFound {
		t.Errorf("GET hidden item = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/inventory_items/"+f.hiddenItem, map[string]any{"current_quantity": 9}, f.staff...); w.Code != http.StatusNotFound {
		t.Errorf("PATCH hidden item = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/inventory_items/"+f.hiddenItem, nil, f.staff...); w.Code != http.StatusNotFound {
		t.Errorf("DELETE hidden item = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/inventory_items", map[string]any{"name": "Planted", "property_id": f.hidden}, f.staff...); w.Code != http.StatusForbidden {
		t.Errorf("POST into hidden property = %d, want 403", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/inventory_items/"+f.ownItem, map[string]any{"property_id": f.hidden}, f.staff...); w.Code != http.StatusForbidden {
		t.Errorf("PATCH move into hidden property = %d, want 403", w.Code)
	}

	// Own and shared rows stay writable.
	if w := do(t, r, http.MethodPatch, "/inventory_items/"+f.ownItem, map[string]any{"current_quantity": 3}, f.staff...); w.Code != http.StatusOK {
		t.Errorf("PATCH own item = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/inventory_items", map[string]any{"name": "Batteries"}, f.staff...); w.Code != http.StatusCreated {
		t.Errorf("POST shared item = %d, body = %s", w.Code, w.Body.String())
	}

	doc, err := f.db.Get(context.Background(), models.TableInventoryItems, f.hiddenItem)
	if err != nil {
		t.Fatal(err)
	}
	var item models.InventoryItem
	if err := json.Unmarshal(doc, &item); err != nil {
		t.Fatal(err)
	}
	if item.CurrentQuantity != 0 {
		t.Errorf("hidden item quantity = %d, want untouched", item.CurrentQuantity)
	}

	if w := uploadPhoto(t, r, "x.png", pngHeader, f.hidden, f.staff...); w.Code != http.StatusForbidden {
		t.Errorf("photo for hidden property = %d, want 403", w.Code)
	}
	if w := uploadPhoto(t, r, "x.png", pngHeader, f.assigned, f.staff...); w.Code != http.StatusCreated {
		t.Errorf("photo for assigned property = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodDelete, "/photos/"+f.hidden+"/ab/x.png", nil, f.staff...); w.Code != http.StatusForbidden {
		t.Errorf("delete photo of hidden property = %d, want 403", w.Code)
	}
}

func TestMigrationClaims(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/migration-claims/inventory-migration:p1", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first claim = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[ClaimResponse](t, w); !got.Claimed {
		t.Error("first claim not won")
	}

	w = do(t, router, http.MethodPost, "/migration-claims/inventory-migration:p1", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second claim = %d, want 409", w.Code)
	}

	if w = do(t, router, http.MethodDelete, "/migration-claims/inventory-migration:p1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("release = %d", w.Code)
	}
	if w = do(t, router, http.MethodPost, "/migration-claims/inventory-migration:p1", nil); w.Code != http.StatusCreated {
		t.Errorf("claim after release = %d, want 201", w.Code)
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func uploadPhoto(t *testing.T, router http.Handler, filename string, content []byte, propertyID string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if propertyID != "" {
		_ = mw.WriteField("property_id", propertyID)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadPhoto(t *testing.T) {
	_, router, root := testEnvFull(t, identity.NewAuthenticator(identity.ModeDisabled, "", ""), nil)

	content := append(append([]byte{}, pngHeader...), []byte("pixels")...)
	w := uploadPhoto(t, router, "damage.PNG", content, "p1")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[PhotoResponse](t, w)
	if !strings.HasPrefix(resp.Key, "photos/p1/") || !strings.HasSuffix(resp.Key, ".png") {
		t.Errorf("key = %q", resp.Key)
	}
	if resp.URL != "/files/"+resp.Key {
		t.Errorf("url = %q", resp.URL)
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(resp.Key)))
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("stored content differs")
	}

	if w := do(t, router, http.MethodDelete, "/"+resp.Key, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete photo = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/"+resp.Key, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing photo = %d, want 404", w.Code)
	}
}

func TestUploadPhoto_Rejected(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadPhoto(t, router, "notes.txt", []byte("plain text"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-image = %d, want 400", w.Code)
	}
	if w := uploadPhoto(t, router, "x.png", pngHeader, "../etc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad property id = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/photos", strings.NewReader("nothing"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", w.Code)
	}
}

func TestEvents_AuthProtected(t *testing.T) {
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)
	_, router, _ := testEnvFull(t, identity.NewAuthenticator(identity.ModeToken, "tok", ""), broker)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("events without token = %d, want 401", w.Code)
	}
}

func TestEvents_StreamChanges(t *testing.T) {
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)
	db, router, _ := testEnvFull(t, identity.NewAuthenticator(identity.ModeDisabled, "", ""), broker)
	db.OnChange(broker.PublishChange)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?tables=properties", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := db.Insert(ctx, models.TableInventoryCategories, []byte(`{"name":"ignored"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Insert(ctx, models.TableProperties, []byte(`{"name":"Streamed"}`)); err != nil {
		t.Fatal(err)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimPrefix(line, "event: "); got != "properties.insert" {
				t.Fatalf("first event = %q, want properties.insert", got)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}

func TestEvents_StaffStreamSkipsHiddenProperties(t *testing.T) {
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)
	f := newStaffFixture(t, broker)
	f.db.OnChange(broker.PublishChange)

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?tables=inventory_items", nil)
	req.Header.Set(f.staff[0], f.staff[1])
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := f.db.Update(ctx, models.TableInventoryItems, f.hiddenItem, map[string]any{"current_quantity": 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.Update(ctx, models.TableInventoryItems, f.ownItem, map[string]any{"current_quantity": 5}); err != nil {
		t.Fatal(err)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			if strings.Contains(line, f.hiddenItem) {
				t.Fatalf("staff received a hidden property's change: %s", line)
			}
			if !strings.Contains(line, f.ownItem) {
				t.Fatalf("unexpected change: %s", line)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}
