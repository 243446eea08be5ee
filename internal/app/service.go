package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"wayfind/api/internal/auth"
	"wayfind/api/internal/authpw"
	"wayfind/api/internal/config"
	"wayfind/api/internal/order"
	"wayfind/api/internal/search"
	"wayfind/api/internal/store"
	"wayfind/api/internal/util"

	"github.com/google/uuid"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertRoadmap(ctx context.Context, roadmap store.Roadmap) error
	GetRoadmap(ctx context.Context, ownerID, roadmapID string) (store.Roadmap, error)
	GetRoadmapBySlug(ctx context.Context, ownerID, slug string) (store.Roadmap, error)
	ListRoadmaps(ctx context.Context, ownerID string) ([]store.Roadmap, error)
	UpdateRoadmap(ctx context.Context, ownerID, roadmapID, name, category, description string) (bool, error)
	DeleteRoadmap(ctx context.Context, ownerID, roadmapID string) (bool, error)
	SlugExists(ctx context.Context, ownerID, slug string) (bool, error)

	InsertItem(ctx context.Context, ownerID, roadmapID, itemID, title, description string) (store.Item, error)
	GetItem(ctx context.Context, ownerID, itemID string) (store.Item, error)
	ListRoadmapItems(ctx context.Context, ownerID, roadmapID string) ([]store.Item, error)
	ListOwnerItems(ctx context.Context, ownerID string) ([]store.Item, error)
	UpdateItem(ctx context.Context, ownerID, itemID, title, description string) (bool, error)
	ToggleItemFinished(ctx context.Context, ownerID, itemID string) (bool, error)
	DeleteItem(ctx context.Context, ownerID, itemID string) (bool, error)
	MoveItem(ctx context.Context, ownerID, itemID string, dir order.Direction) (store.Item, error)

	Ping(ctx context.Context) error
}

// refreshSessionStore lets refresh tokens live in Redis when configured,
// with the Postgres store as the fallback backend.
type refreshSessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessionStore
	authSvc  *authpw.Service
	search   *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		authSvc:  authpw.NewService(dataStore),
		search:   searchService,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessionStore refreshSessionStore, searchService *search.Service) *Service {
	service := New(cfg, dataStore, searchService)
	service.sessions = sessionStore
	return service
}

// Bootstrap runs startup work that needs the full stack: today that is
// refilling the search indexes from Postgres.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Sessions ---

func (s *Service) SignUp(ctx context.Context, username, email, password string) (map[string]any, error) {
	user, err := s.authSvc.Register(ctx, authpw.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	switch {
	case errors.Is(err, authpw.ErrUsernameTaken):
		return nil, domainError(http.StatusConflict, "USERNAME_EXISTS", "Username already registered", nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return nil, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrValidation), errors.Is(err, authpw.ErrPasswordTooShort):
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case err != nil:
		return nil, err
	}
	return map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"email":    user.Email,
	}, nil
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	user, err := s.authSvc.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis backend stores only the user id; reload the full record.
	if user.Username == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken is the ownership guard: it resolves the bearer token to
// the owner id every subsequent store call is scoped by.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Roadmaps ---

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "roadmap"
	}
	return slug
}

func slugSuffix() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func (s *Service) CreateRoadmap(ctx context.Context, ownerID, name, category, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	slug := slugify(name)
	exists, err := s.store.SlugExists(ctx, ownerID, slug)
	if err != nil {
		return nil, err
	}
	if exists {
		slug = slug + "-" + slugSuffix()
	}

	roadmap := store.Roadmap{
		ID:          util.NewID("rm"),
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
		Slug:        slug,
	}

	for attempt := 0; ; attempt++ {
		err = s.store.InsertRoadmap(ctx, roadmap)
		if err == nil {
			break
		}
		// Slug raced with a concurrent create; retry with a fresh suffix.
		if errors.Is(err, store.ErrDuplicate) && attempt < 2 {
			roadmap.Slug = slugify(name) + "-" + slugSuffix()
			continue
		}
		return nil, err
	}

	if s.search != nil {
		s.search.IndexRoadmap(roadmapRecord(roadmap))
	}
	return roadmapPayload(roadmap), nil
}

func (s *Service) ListRoadmaps(ctx context.Context, ownerID string) ([]map[string]any, error) {
	roadmaps, err := s.store.ListRoadmaps(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(roadmaps))
	for _, roadmap := range roadmaps {
		payload = append(payload, roadmapPayload(roadmap))
	}
	return payload, nil
}

func (s *Service) GetRoadmap(ctx context.Context, ownerID, roadmapID string) (map[string]any, error) {
	roadmap, err := s.store.GetRoadmap(ctx, ownerID, roadmapID)
	if err != nil {
		return nil, err
	}
	return s.roadmapWithItems(ctx, roadmap)
}

func (s *Service) GetRoadmapBySlug(ctx context.Context, ownerID, slug string) (map[string]any, error) {
	roadmap, err := s.store.GetRoadmapBySlug(ctx, ownerID, slug)
	if err != nil {
		return nil, err
	}
	return s.roadmapWithItems(ctx, roadmap)
}

func (s *Service) roadmapWithItems(ctx context.Context, roadmap store.Roadmap) (map[string]any, error) {
	items, err := s.store.ListRoadmapItems(ctx, roadmap.OwnerID, roadmap.ID)
	if err != nil {
		return nil, err
	}
	payload := roadmapPayload(roadmap)
	itemPayloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		itemPayloads = append(itemPayloads, itemPayload(item))
	}
	payload["items"] = itemPayloads
	return payload, nil
}

func (s *Service) UpdateRoadmap(ctx context.Context, ownerID, roadmapID, name, category, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	ok, err := s.store.UpdateRoadmap(ctx, ownerID, roadmapID, name, strings.TrimSpace(category), strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found", nil)
	}

	roadmap, err := s.store.GetRoadmap(ctx, ownerID, roadmapID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexRoadmap(roadmapRecord(roadmap))
	}
	return roadmapPayload(roadmap), nil
}

func (s *Service) DeleteRoadmap(ctx context.Context, ownerID, roadmapID string) error {
	ok, err := s.store.DeleteRoadmap(ctx, ownerID, roadmapID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found", nil)
	}

	if s.search != nil {
		s.search.DeleteRoadmap(roadmapID)
		// Filter delete covers items created while this call was in flight;
		// a pre-delete snapshot of item ids would miss them.
		s.search.DeleteRoadmapItems(roadmapID)
	}
	return nil
}

// --- Items ---

func (s *Service) CreateItem(ctx context.Context, ownerID, roadmapID, title, description string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(roadmapID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "roadmapId is required", nil)
	}

	item, err := s.store.InsertItem(ctx, ownerID, roadmapID, util.NewID("it"), title, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexItem(itemRecord(item))
	}
	return itemPayload(item), nil
}

func (s *Service) GetItem(ctx context.Context, ownerID, itemID string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	return itemPayload(item), nil
}

func (s *Service) ListRoadmapItems(ctx context.Context, ownerID, roadmapID string) ([]map[string]any, error) {
	// Surface 404 for foreign/missing roadmaps instead of an empty list.
	if _, err := s.store.GetRoadmap(ctx, ownerID, roadmapID); err != nil {
		return nil, err
	}
	items, err := s.store.ListRoadmapItems(ctx, ownerID, roadmapID)
	if err != nil {
		return nil, err
	}
	return itemPayloads(items), nil
}

func (s *Service) ListItems(ctx context.Context, ownerID string) ([]map[string]any, error) {
	items, err := s.store.ListOwnerItems(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return itemPayloads(items), nil
}

func (s *Service) UpdateItem(ctx context.Context, ownerID, itemID, title, description string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	ok, err := s.store.UpdateItem(ctx, ownerID, itemID, title, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}

	item, err := s.store.GetItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexItem(itemRecord(item))
	}
	return itemPayload(item), nil
}

func (s *Service) ToggleItemFinished(ctx context.Context, ownerID, itemID string) (map[string]any, error) {
	ok, err := s.store.ToggleItemFinished(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}

	item, err := s.store.GetItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexItem(itemRecord(item))
	}
	return itemPayload(item), nil
}

func (s *Service) DeleteItem(ctx context.Context, ownerID, itemID string) error {
	ok, err := s.store.DeleteItem(ctx, ownerID, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

// MoveItem swaps an item with its neighbor. Boundary hits are expected
// outcomes and map to 409; a broken position sequence is an internal fault
// that gets logged and hidden behind a generic failure.
func (s *Service) MoveItem(ctx context.Context, ownerID, itemID, rawDirection string) (map[string]any, error) {
	dir, err := order.ParseDirection(rawDirection)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction must be \"up\" or \"down\"", nil)
	}

	item, err := s.store.MoveItem(ctx, ownerID, itemID, dir)
	switch {
	case errors.Is(err, order.ErrAlreadyFirst):
		return nil, domainError(http.StatusConflict, "ALREADY_FIRST", "Item is already first", nil)
	case errors.Is(err, order.ErrAlreadyLast):
		return nil, domainError(http.StatusConflict, "ALREADY_LAST", "Item is already last", nil)
	case errors.Is(err, order.ErrOutOfSequence):
		log.Printf("ERROR: position sequence corrupt for owner=%s item=%s: %v", ownerID, itemID, err)
		return nil, domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	case err != nil:
		return nil, err
	}

	if s.search != nil {
		s.search.IndexItem(itemRecord(item))
	}
	return map[string]any{
		"id":        item.ID,
		"direction": string(dir),
		"position":  item.Position,
	}, nil
}

// --- Search ---

func (s *Service) Search(ownerID, text, filterType string, limit, offset int) (search.Response, error) {
	var rtyp search.ResultType
	switch filterType {
	case "":
	case string(search.ResultRoadmap):
		rtyp = search.ResultRoadmap
	case string(search.ResultItem):
		rtyp = search.ResultItem
	default:
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown search type %q", filterType), nil)
	}

	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		OwnerID:    ownerID,
		Text:       text,
		FilterType: rtyp,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// --- Payload helpers ---

func roadmapPayload(roadmap store.Roadmap) map[string]any {
	return map[string]any{
		"id":          roadmap.ID,
		"ownerId":     roadmap.OwnerID,
		"name":        roadmap.Name,
		"description": roadmap.Description,
		"category":    roadmap.Category,
		"slug":        roadmap.Slug,
		"itemCount":   roadmap.ItemCount,
		"createdAt":   roadmap.CreatedAt,
	}
}

func itemPayload(item store.Item) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"ownerId":     item.OwnerID,
		"roadmapId":   item.RoadmapID,
		"title":       item.Title,
		"description": item.Description,
		"position":    item.Position,
		"isFinished":  item.IsFinished,
		"createdAt":   item.CreatedAt,
		"modifiedAt":  item.ModifiedAt,
	}
}

func itemPayloads(items []store.Item) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload(item))
	}
	return payload
}

func roadmapRecord(roadmap store.Roadmap) search.RoadmapRecord {
	return search.RoadmapRecord{
		ID:          roadmap.ID,
		OwnerID:     roadmap.OwnerID,
		Name:        roadmap.Name,
		Description: roadmap.Description,
		Category:    roadmap.Category,
		Slug:        roadmap.Slug,
	}
}

func itemRecord(item store.Item) search.ItemRecord {
	return search.ItemRecord{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		RoadmapID:   item.RoadmapID,
		Title:       item.Title,
		Description: item.Description,
		IsFinished:  item.IsFinished,
	}
}
