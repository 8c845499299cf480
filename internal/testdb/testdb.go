// Package testdb provides the in-memory stores the package tests run against.
package testdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a migrated in-memory SQLite database private to t.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := repositories.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user named username with an @example.com address.
func CreateUser(t *testing.T, db *gorm.DB, username string, private bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Name: username, IsPrivate: private}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// ReloadUser reads the stored state of user id.
func ReloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return &user
}

// PostStore is an in-memory repositories.PostRepository.
type PostStore struct {
	mu    sync.Mutex
	posts map[string]*models.Post
}

func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[string]*models.Post)}
}

var _ repositories.PostRepository = (*PostStore)(nil)

func (s *PostStore) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	cp := *post
	s.posts[post.ID.Hex()] = &cp
	return nil
}

func (s *PostStore) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, repositories.ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PostStore) page(match func(*models.Post) bool, skip, limit int64) ([]models.Post, int64) {
	var all []models.Post
	for _, p := range s.posts {
		if match(p) {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Hex() > all[j].ID.Hex()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))
	if skip >= total {
		return []models.Post{}, total
	}
	end := skip + limit
	if end > total {
		end = total
	}
	return all[skip:end], total
}

func (s *PostStore) GetPostsByAuthors(_ context.Context, authorIDs []uint, skip, limit int64) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	authors := make(map[uint]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	posts, total := s.page(func(p *models.Post) bool { return authors[p.AuthorID] }, skip, limit)
	return posts, total, nil
}

func (s *PostStore) GetAllPosts(_ context.Context, skip, limit int64) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, total := s.page(func(*models.Post) bool { return true }, skip, limit)
	return posts, total, nil
}

func (s *PostStore) UpdatePost(_ context.Context, id string, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return repositories.ErrPostNotFound
	}
	p.Content = post.Content
	p.ImageURLs = post.ImageURLs
	p.VideoURLs = post.VideoURLs
	p.Mentions = post.Mentions
	p.UpdatedAt = time.Now()
	return nil
}

func (s *PostStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return repositories.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *PostStore) AdjustLikesCount(_ context.Context, postID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return repositories.ErrPostNotFound
	}
	p.LikesCount += delta
	return nil
}

func (s *PostStore) AdjustCommentsCount(_ context.Context, postID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return repositories.ErrPostNotFound
	}
	p.CommentsCount += delta
	return nil
}
