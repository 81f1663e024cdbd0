package users

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mukkaboot-ai/auth-service/internal/filestore"
	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

// FileRepository implements Repository on the flat-file document store.
type FileRepository struct {
	store *filestore.Store
}

// NewFileRepository constructs a flat-file repository.
func NewFileRepository(store *filestore.Store) *FileRepository {
	return &FileRepository{store: store}
}

func (r *FileRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(func(u filestore.User) bool { return u.Username == username })
}

func (r *FileRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(func(u filestore.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *FileRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(func(u filestore.User) bool { return u.ID == id })
}

func (r *FileRepository) findOne(match func(filestore.User) bool) (*User, error) {
	var found *User
	r.store.View(func(doc *filestore.Document) {
		for i := range doc.Users {
			if match(doc.Users[i]) {
				u := fromRecord(doc.Users[i])
				found = &u
				return
			}
		}
	})
	if found == nil {
		return nil, httpx.ErrNotFound
	}
	return found, nil
}

func (r *FileRepository) Create(ctx context.Context, user *User) (*User, error) {
	record := toRecord(*user)
	err := r.store.Update(func(doc *filestore.Document) error {
		for i := range doc.Users {
			if doc.Users[i].Username == user.Username || strings.EqualFold(doc.Users[i].Email, user.Email) {
				return httpx.ErrDuplicate
			}
		}
		doc.Users = append(doc.Users, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := fromRecord(record)
	return &created, nil
}

func (r *FileRepository) Update(ctx context.Context, id string, fields UpdateFields) (*User, error) {
	var updated User
	err := r.store.Update(func(doc *filestore.Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID != id {
				continue
			}
			if fields.Username != nil || fields.Email != nil {
				for j := range doc.Users {
					if j == i {
						continue
					}
					if fields.Username != nil && doc.Users[j].Username == *fields.Username {
						return httpx.ErrDuplicate
					}
					if fields.Email != nil && strings.EqualFold(doc.Users[j].Email, *fields.Email) {
						return httpx.ErrDuplicate
					}
				}
			}
			applyFields(&doc.Users[i], fields)
			doc.Users[i].UpdatedAt = time.Now().UTC()
			updated = fromRecord(doc.Users[i])
			return nil
		}
		return httpx.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.store.Update(func(doc *filestore.Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID == id {
				doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
				deleted = true
				return nil
			}
		}
		return httpx.ErrNotFound
	})
	if err != nil {
		if err == httpx.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return deleted, nil
}

func (r *FileRepository) List(ctx context.Context, filter ListFilter, page Page) ([]User, error) {
	var matched []User
	r.store.View(func(doc *filestore.Document) {
		for i := range doc.Users {
			if matchesFilter(doc.Users[i], filter) {
				matched = append(matched, fromRecord(doc.Users[i]))
			}
		}
	})

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	if page.Skip >= len(matched) {
		return nil, nil
	}
	end := page.Skip + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Skip:end], nil
}

func (r *FileRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	total := 0
	r.store.View(func(doc *filestore.Document) {
		for i := range doc.Users {
			if matchesFilter(doc.Users[i], filter) {
				total++
			}
		}
	})
	return total, nil
}

func matchesFilter(u filestore.User, filter ListFilter) bool {
	if filter.Role != nil && u.Role != *filter.Role {
		return false
	}
	if filter.Active != nil && u.Active != *filter.Active {
		return false
	}
	return true
}

func applyFields(record *filestore.User, fields UpdateFields) {
	if fields.Username != nil {
		record.Username = *fields.Username
	}
	if fields.Email != nil {
		record.Email = *fields.Email
	}
	if fields.PasswordHash != nil {
		record.PasswordHash = *fields.PasswordHash
	}
	if fields.Role != nil {
		record.Role = *fields.Role
	}
	if fields.Active != nil {
		record.Active = *fields.Active
	}
	if fields.Verified != nil {
		record.Verified = *fields.Verified
	}
	if fields.LastLogin != nil {
		t := *fields.LastLogin
		record.LastLogin = &t
	}
}

func toRecord(u User) filestore.User {
	return filestore.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Active:       u.Active,
		Verified:     u.Verified,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromRecord(record filestore.User) User {
	return User{
		ID:           record.ID,
		Username:     record.Username,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         record.Role,
		Active:       record.Active,
		Verified:     record.Verified,
		LastLogin:    record.LastLogin,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

var _ Repository = (*FileRepository)(nil)
