package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"wayfind/api/internal/authpw"
	"wayfind/api/internal/config"
	"wayfind/api/internal/order"
	"wayfind/api/internal/store"
)

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// fakeStore is an in-memory dataStore that keeps the same position
// semantics as the Postgres implementation: dense 1..N per roadmap,
// renumbering on delete, owner scoping on every lookup.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	roadmaps map[string]store.Roadmap
	items    map[string]store.Item
	refresh  map[string]refreshEntry
	revoked  map[string]bool

	pingErr     error
	listItemsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]store.User{},
		roadmaps: map[string]store.Roadmap{},
		items:    map[string]store.Item{},
		refresh:  map[string]refreshEntry{},
		revoked:  map[string]bool{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = refreshEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.refresh[tokenHash]
	if !ok || time.Now().After(entry.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	user, ok := f.users[entry.userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) InsertRoadmap(_ context.Context, roadmap store.Roadmap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.roadmaps {
		if existing.OwnerID == roadmap.OwnerID && existing.Slug == roadmap.Slug {
			return store.ErrDuplicate
		}
	}
	roadmap.CreatedAt = time.Now()
	f.roadmaps[roadmap.ID] = roadmap
	return nil
}

func (f *fakeStore) GetRoadmap(_ context.Context, ownerID, roadmapID string) (store.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roadmapLocked(ownerID, roadmapID)
}

func (f *fakeStore) roadmapLocked(ownerID, roadmapID string) (store.Roadmap, error) {
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok || roadmap.OwnerID != ownerID {
		return store.Roadmap{}, sql.ErrNoRows
	}
	roadmap.ItemCount = f.countItemsLocked(roadmapID)
	return roadmap, nil
}

func (f *fakeStore) GetRoadmapBySlug(_ context.Context, ownerID, slug string) (store.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, roadmap := range f.roadmaps {
		if roadmap.OwnerID == ownerID && roadmap.Slug == slug {
			roadmap.ItemCount = f.countItemsLocked(roadmap.ID)
			return roadmap, nil
		}
	}
	return store.Roadmap{}, sql.ErrNoRows
}

func (f *fakeStore) ListRoadmaps(_ context.Context, ownerID string) ([]store.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Roadmap
	for _, roadmap := range f.roadmaps {
		if roadmap.OwnerID == ownerID {
			roadmap.ItemCount = f.countItemsLocked(roadmap.ID)
			out = append(out, roadmap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeStore) UpdateRoadmap(_ context.Context, ownerID, roadmapID, name, category, description string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok || roadmap.OwnerID != ownerID {
		return false, nil
	}
	roadmap.Name = name
	roadmap.Category = category
	roadmap.Description = description
	f.roadmaps[roadmapID] = roadmap
	return true, nil
}

func (f *fakeStore) DeleteRoadmap(_ context.Context, ownerID, roadmapID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok || roadmap.OwnerID != ownerID {
		return false, nil
	}
	delete(f.roadmaps, roadmapID)
	for id, item := range f.items {
		if item.RoadmapID == roadmapID {
			delete(f.items, id)
		}
	}
	return true, nil
}

func (f *fakeStore) SlugExists(_ context.Context, ownerID, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, roadmap := range f.roadmaps {
		if roadmap.OwnerID == ownerID && roadmap.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) countItemsLocked(roadmapID string) int {
	count := 0
	for _, item := range f.items {
		if item.RoadmapID == roadmapID {
			count++
		}
	}
	return count
}

func (f *fakeStore) InsertItem(_ context.Context, ownerID, roadmapID, itemID, title, description string) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.roadmapLocked(ownerID, roadmapID); err != nil {
		return store.Item{}, err
	}
	max := 0
	for _, item := range f.items {
		if item.RoadmapID == roadmapID && item.Position > max {
			max = item.Position
		}
	}
	now := time.Now()
	item := store.Item{
		ID:          itemID,
		OwnerID:     ownerID,
		RoadmapID:   roadmapID,
		Title:       title,
		Description: description,
		Position:    max + 1,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	f.items[itemID] = item
	return item, nil
}

func (f *fakeStore) GetItem(_ context.Context, ownerID, itemID string) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return store.Item{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListRoadmapItems(_ context.Context, ownerID, roadmapID string) ([]store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listItemsErr != nil {
		return nil, f.listItemsErr
	}
	var out []store.Item
	for _, item := range f.items {
		if item.OwnerID == ownerID && item.RoadmapID == roadmapID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeStore) ListOwnerItems(_ context.Context, ownerID string) ([]store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Item
	for _, item := range f.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoadmapID != out[j].RoadmapID {
			return out[i].RoadmapID < out[j].RoadmapID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, ownerID, itemID, title, description string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return false, nil
	}
	item.Title = title
	item.Description = description
	item.ModifiedAt = time.Now()
	f.items[itemID] = item
	return true, nil
}

func (f *fakeStore) ToggleItemFinished(_ context.Context, ownerID, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return false, nil
	}
	item.IsFinished = !item.IsFinished
	item.ModifiedAt = time.Now()
	f.items[itemID] = item
	return true, nil
}

func (f *fakeStore) DeleteItem(_ context.Context, ownerID, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return false, nil
	}
	delete(f.items, itemID)
	for id, other := range f.items {
		if other.RoadmapID == item.RoadmapID && other.Position > item.Position {
			other.Position--
			f.items[id] = other
		}
	}
	return true, nil
}

func (f *fakeStore) MoveItem(_ context.Context, ownerID, itemID string, dir order.Direction) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.OwnerID != ownerID {
		return store.Item{}, sql.ErrNoRows
	}

	bounds := order.Bounds{Min: 1 << 30}
	for _, other := range f.items {
		if other.RoadmapID != item.RoadmapID {
			continue
		}
		bounds.Count++
		if other.Position < bounds.Min {
			bounds.Min = other.Position
		}
		if other.Position > bounds.Max {
			bounds.Max = other.Position
		}
	}

	target, err := order.Plan(item.Position, dir, bounds)
	if err != nil {
		return store.Item{}, err
	}

	for id, other := range f.items {
		if other.RoadmapID == item.RoadmapID && other.Position == target {
			other.Position = item.Position
			f.items[id] = other
			break
		}
	}
	item.Position = target
	item.ModifiedAt = time.Now()
	f.items[itemID] = item
	return item, nil
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	cfg := config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		CORSOrigin:  "*",
	}
	service := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		authSvc:  authpw.NewService(fs),
	}
	return service, fs
}

func signUpOwner(t *testing.T, service *Service, username string) string {
	t.Helper()
	payload, err := service.SignUp(context.Background(), username, username+"@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return payload["userId"].(string)
}

func createRoadmap(t *testing.T, service *Service, ownerID, name string) string {
	t.Helper()
	payload, err := service.CreateRoadmap(context.Background(), ownerID, name, "backend", "")
	if err != nil {
		t.Fatalf("create roadmap %q: %v", name, err)
	}
	return payload["id"].(string)
}

func createItem(t *testing.T, service *Service, ownerID, roadmapID, title string) string {
	t.Helper()
	payload, err := service.CreateItem(context.Background(), ownerID, roadmapID, title, "")
	if err != nil {
		t.Fatalf("create item %q: %v", title, err)
	}
	return payload["id"].(string)
}

func domainStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Status, domainErr.Code
}

func TestSignUpSignInSessionRoundTrip(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	payload, err := service.SignUp(ctx, "ada", "ada@example.com", "verysecret")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if payload["username"] != "ada" {
		t.Fatalf("username = %v", payload["username"])
	}

	session, err := service.SignIn(ctx, "ada", "verysecret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	resolved, err := service.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if resolved.UserID != session.UserID || resolved.Username != "ada" {
		t.Fatalf("resolved session = %+v", resolved)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	service, _ := newTestService(t)
	signUpOwner(t, service, "ada")

	_, err := service.SignIn(context.Background(), "ada", "not-the-password")
	status, code := domainStatus(t, err)
	if status != http.StatusUnauthorized || code != "INVALID_CREDENTIALS" {
		t.Fatalf("status=%d code=%s", status, code)
	}
}

func TestSignUpDuplicateUsername(t *testing.T) {
	service, _ := newTestService(t)
	signUpOwner(t, service, "ada")

	_, err := service.SignUp(context.Background(), "ada", "other@example.com", "verysecret")
	status, code := domainStatus(t, err)
	if status != http.StatusConflict || code != "USERNAME_EXISTS" {
		t.Fatalf("status=%d code=%s", status, code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	service, _ := newTestService(t)
	signUpOwner(t, service, "ada")
	ctx := context.Background()

	first, err := service.SignIn(ctx, "ada", "hunter2hunter2")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	second, err := service.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The old refresh token is single-use.
	if _, err := service.Refresh(ctx, first.RefreshToken); err == nil {
		t.Fatal("expected reused refresh token to fail")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	service, _ := newTestService(t)
	signUpOwner(t, service, "ada")
	ctx := context.Background()

	session, err := service.SignIn(ctx, "ada", "hunter2hunter2")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := service.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := service.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
	if _, err := service.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to be rejected")
	}
}

func TestCreateRoadmapSlugUniquePerOwner(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	ctx := context.Background()

	first, err := service.CreateRoadmap(ctx, owner, "Learn Go", "backend", "")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if first["slug"] != "learn-go" {
		t.Fatalf("slug = %v", first["slug"])
	}

	second, err := service.CreateRoadmap(ctx, owner, "Learn Go", "backend", "")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	slug := second["slug"].(string)
	if slug == "learn-go" || len(slug) <= len("learn-go-") {
		t.Fatalf("expected suffixed slug, got %q", slug)
	}

	// A different owner can reuse the plain slug.
	other := signUpOwner(t, service, "bob")
	third, err := service.CreateRoadmap(ctx, other, "Learn Go", "backend", "")
	if err != nil {
		t.Fatalf("create for other owner: %v", err)
	}
	if third["slug"] != "learn-go" {
		t.Fatalf("other owner slug = %v", third["slug"])
	}
}

func TestCreateRoadmapRequiresName(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")

	_, err := service.CreateRoadmap(context.Background(), owner, "   ", "backend", "")
	status, code := domainStatus(t, err)
	if status != http.StatusUnprocessableEntity || code != "VALIDATION_ERROR" {
		t.Fatalf("status=%d code=%s", status, code)
	}
}

func TestCreateItemAssignsNextPosition(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		payload, err := service.CreateItem(ctx, owner, roadmapID, "step", "")
		if err != nil {
			t.Fatalf("create item %d: %v", want, err)
		}
		if payload["position"] != want {
			t.Fatalf("position = %v, want %d", payload["position"], want)
		}
	}
}

func TestMoveItemSwapsWithNeighbor(t *testing.T) {
	service, fs := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	a := createItem(t, service, owner, roadmapID, "a")
	b := createItem(t, service, owner, roadmapID, "b")
	c := createItem(t, service, owner, roadmapID, "c")

	payload, err := service.MoveItem(ctx, owner, b, "up")
	if err != nil {
		t.Fatalf("move up: %v", err)
	}
	if payload["position"] != 1 {
		t.Fatalf("moved position = %v", payload["position"])
	}

	assertPositions(t, fs, roadmapID, map[string]int{a: 2, b: 1, c: 3})
}

func TestMoveItemUpThenDownRestoresOrder(t *testing.T) {
	service, fs := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	a := createItem(t, service, owner, roadmapID, "a")
	b := createItem(t, service, owner, roadmapID, "b")

	if _, err := service.MoveItem(ctx, owner, b, "up"); err != nil {
		t.Fatalf("move up: %v", err)
	}
	if _, err := service.MoveItem(ctx, owner, b, "down"); err != nil {
		t.Fatalf("move down: %v", err)
	}
	assertPositions(t, fs, roadmapID, map[string]int{a: 1, b: 2})
}

func TestMoveItemBoundaries(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	first := createItem(t, service, owner, roadmapID, "first")
	last := createItem(t, service, owner, roadmapID, "last")

	_, err := service.MoveItem(ctx, owner, first, "up")
	status, code := domainStatus(t, err)
	if status != http.StatusConflict || code != "ALREADY_FIRST" {
		t.Fatalf("up at top: status=%d code=%s", status, code)
	}

	_, err = service.MoveItem(ctx, owner, last, "down")
	status, code = domainStatus(t, err)
	if status != http.StatusConflict || code != "ALREADY_LAST" {
		t.Fatalf("down at bottom: status=%d code=%s", status, code)
	}
}

func TestMoveSingleItemIsBothFirstAndLast(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	only := createItem(t, service, owner, roadmapID, "only")
	ctx := context.Background()

	_, err := service.MoveItem(ctx, owner, only, "up")
	if _, code := domainStatus(t, err); code != "ALREADY_FIRST" {
		t.Fatalf("up: code=%s", code)
	}
	_, err = service.MoveItem(ctx, owner, only, "down")
	if _, code := domainStatus(t, err); code != "ALREADY_LAST" {
		t.Fatalf("down: code=%s", code)
	}
}

func TestMoveItemBadDirection(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	itemID := createItem(t, service, owner, roadmapID, "a")

	_, err := service.MoveItem(context.Background(), owner, itemID, "sideways")
	status, code := domainStatus(t, err)
	if status != http.StatusUnprocessableEntity || code != "VALIDATION_ERROR" {
		t.Fatalf("status=%d code=%s", status, code)
	}
}

func TestDeleteItemRenumbersPositions(t *testing.T) {
	service, fs := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	a := createItem(t, service, owner, roadmapID, "a")
	b := createItem(t, service, owner, roadmapID, "b")
	c := createItem(t, service, owner, roadmapID, "c")

	if err := service.DeleteItem(ctx, owner, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertPositions(t, fs, roadmapID, map[string]int{a: 1, c: 2})

	// The compacted sequence still supports a move.
	if _, err := service.MoveItem(ctx, owner, c, "up"); err != nil {
		t.Fatalf("move after delete: %v", err)
	}
	assertPositions(t, fs, roadmapID, map[string]int{a: 2, c: 1})
}

func TestDeleteRoadmapDoesNotReadItemsFirst(t *testing.T) {
	service, fs := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	createItem(t, service, owner, roadmapID, "a")
	ctx := context.Background()

	// Deleting must not depend on a pre-delete item snapshot: items added
	// between a snapshot and the delete would escape index cleanup.
	fs.listItemsErr = errors.New("list must not be called")
	if err := service.DeleteRoadmap(ctx, owner, roadmapID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	fs.listItemsErr = nil

	if _, err := service.GetRoadmap(ctx, owner, roadmapID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("roadmap still present: %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	service, _ := newTestService(t)
	ada := signUpOwner(t, service, "ada")
	bob := signUpOwner(t, service, "bob")
	roadmapID := createRoadmap(t, service, ada, "Learn Go")
	itemID := createItem(t, service, ada, roadmapID, "a")
	ctx := context.Background()

	// Foreign rows look exactly like missing rows.
	if _, err := service.GetRoadmap(ctx, bob, roadmapID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("get roadmap: %v", err)
	}
	if _, err := service.GetItem(ctx, bob, itemID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("get item: %v", err)
	}
	if _, err := service.MoveItem(ctx, bob, itemID, "up"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("move item: %v", err)
	}
	if err := service.DeleteItem(ctx, bob, itemID); err == nil {
		t.Fatal("expected delete of foreign item to fail")
	}
	if _, err := service.UpdateRoadmap(ctx, bob, roadmapID, "Mine Now", "", ""); err == nil {
		t.Fatal("expected update of foreign roadmap to fail")
	}

	// Nothing above touched ada's data.
	item, err := service.GetItem(ctx, ada, itemID)
	if err != nil {
		t.Fatalf("owner get item: %v", err)
	}
	if item["title"] != "a" || item["position"] != 1 {
		t.Fatalf("item changed: %+v", item)
	}
}

func TestToggleItemFinished(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	itemID := createItem(t, service, owner, roadmapID, "a")
	ctx := context.Background()

	payload, err := service.ToggleItemFinished(ctx, owner, itemID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if payload["isFinished"] != true {
		t.Fatalf("isFinished = %v", payload["isFinished"])
	}

	payload, err = service.ToggleItemFinished(ctx, owner, itemID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if payload["isFinished"] != false {
		t.Fatalf("isFinished = %v", payload["isFinished"])
	}
}

func TestGetRoadmapIncludesOrderedItems(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")
	roadmapID := createRoadmap(t, service, owner, "Learn Go")
	ctx := context.Background()

	createItem(t, service, owner, roadmapID, "a")
	b := createItem(t, service, owner, roadmapID, "b")
	createItem(t, service, owner, roadmapID, "c")
	if _, err := service.MoveItem(ctx, owner, b, "up"); err != nil {
		t.Fatalf("move: %v", err)
	}

	payload, err := service.GetRoadmap(ctx, owner, roadmapID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	items := payload["items"].([]map[string]any)
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	titles := []string{items[0]["title"].(string), items[1]["title"].(string), items[2]["title"].(string)}
	if titles[0] != "b" || titles[1] != "a" || titles[2] != "c" {
		t.Fatalf("order = %v", titles)
	}
}

func TestListRoadmapItemsUnknownRoadmap(t *testing.T) {
	service, _ := newTestService(t)
	owner := signUpOwner(t, service, "ada")

	_, err := service.ListRoadmapItems(context.Background(), owner, "rm_missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v", err)
	}
}

func assertPositions(t *testing.T, fs *fakeStore, roadmapID string, want map[string]int) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	seen := map[int]bool{}
	count := 0
	for id, item := range fs.items {
		if item.RoadmapID != roadmapID {
			continue
		}
		count++
		if wantPos, ok := want[id]; ok && item.Position != wantPos {
			t.Errorf("item %s at position %d, want %d", id, item.Position, wantPos)
		}
		if seen[item.Position] {
			t.Errorf("duplicate position %d", item.Position)
		}
		seen[item.Position] = true
	}
	if count != len(want) {
		t.Fatalf("roadmap has %d items, want %d", count, len(want))
	}
	for pos := 1; pos <= count; pos++ {
		if !seen[pos] {
			t.Errorf("position %d missing from dense sequence", pos)
		}
	}
}
