package tokens

import (
	"context"
	"time"

	"github.com/mukkaboot-ai/auth-service/internal/filestore"
	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

// FileRefreshTokenRepository implements RefreshTokenRepository on the
// flat-file document store. The store mutex serializes every mutation, which
// is what makes the revoke check-and-set atomic within the process.
type FileRefreshTokenRepository struct {
	store *filestore.Store
}

// NewFileRefreshTokenRepository constructs a flat-file refresh token repository.
func NewFileRefreshTokenRepository(store *filestore.Store) *FileRefreshTokenRepository {
	return &FileRefreshTokenRepository{store: store}
}

func (r *FileRefreshTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	record := filestore.RefreshToken{
		Token:       token.Token,
		UserID:      token.UserID,
		Expires:     token.Expires,
		Revoked:     token.Revoked,
		CreatedByIP: token.CreatedByIP,
		CreatedAt:   token.CreatedAt,
	}
	return r.store.Update(func(doc *filestore.Document) error {
		doc.RefreshTokens[token.UserID] = append(doc.RefreshTokens[token.UserID], record)
		return nil
	})
}

func (r *FileRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	var found *RefreshToken
	r.store.View(func(doc *filestore.Document) {
		for userID, list := range doc.RefreshTokens {
			for i := range list {
				if list[i].Token == token {
					found = refreshFromRecord(userID, list[i])
					return
				}
			}
		}
	})
	if found == nil {
		return nil, httpx.ErrNotFound
	}
	return found, nil
}

func (r *FileRefreshTokenRepository) FindLatestForUser(ctx context.Context, userID string) (*RefreshToken, error) {
	var found *RefreshToken
	r.store.View(func(doc *filestore.Document) {
		for i := range doc.RefreshTokens[userID] {
			record := doc.RefreshTokens[userID][i]
			if found == nil || record.CreatedAt.After(found.CreatedAt) {
				found = refreshFromRecord(userID, record)
			}
		}
	})
	if found == nil {
		return nil, httpx.ErrNotFound
	}
	return found, nil
}

func (r *FileRefreshTokenRepository) Revoke(ctx context.Context, token string) (*RefreshToken, error) {
	var revoked *RefreshToken
	now := time.Now()
	err := r.store.Update(func(doc *filestore.Document) error {
		for userID, list := range doc.RefreshTokens {
			for i := range list {
				if list[i].Token != token {
					continue
				}
				if list[i].Revoked || !list[i].Expires.After(now) {
					return httpx.ErrNotFound
				}
				list[i].Revoked = true
				revoked = refreshFromRecord(userID, list[i])
				return nil
			}
		}
		return httpx.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (r *FileRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	count := 0
	err := r.store.Update(func(doc *filestore.Document) error {
		list := doc.RefreshTokens[userID]
		for i := range list {
			if !list[i].Revoked {
				list[i].Revoked = true
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FileRefreshTokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	count := 0
	now := time.Now()
	err := r.store.Update(func(doc *filestore.Document) error {
		for userID, list := range doc.RefreshTokens {
			kept := list[:0]
			for i := range list {
				if list[i].Expires.After(now) {
					kept = append(kept, list[i])
				} else {
					count++
				}
			}
			if len(kept) == 0 {
				delete(doc.RefreshTokens, userID)
			} else {
				doc.RefreshTokens[userID] = kept
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func refreshFromRecord(userID string, record filestore.RefreshToken) *RefreshToken {
	return &RefreshToken{
		Token:       record.Token,
		UserID:      userID,
		Expires:     record.Expires,
		Revoked:     record.Revoked,
		CreatedByIP: record.CreatedByIP,
		CreatedAt:   record.CreatedAt,
	}
}

// FileResetTokenRepository implements ResetTokenRepository on the flat-file
// document store.
type FileResetTokenRepository struct {
	store *filestore.Store
}

// NewFileResetTokenRepository constructs a flat-file reset token repository.
func NewFileResetTokenRepository(store *filestore.Store) *FileResetTokenRepository {
	return &FileResetTokenRepository{store: store}
}

func (r *FileResetTokenRepository) Create(ctx context.Context, token *PasswordResetToken) error {
	record := filestore.PasswordResetToken{
		Token:     token.Token,
		UserID:    token.UserID,
		Expires:   token.Expires,
		Used:      token.Used,
		CreatedAt: token.CreatedAt,
	}
	return r.store.Update(func(doc *filestore.Document) error {
		doc.PasswordResetTokens[token.UserID] = append(doc.PasswordResetTokens[token.UserID], record)
		return nil
	})
}

func (r *FileResetTokenRepository) FindByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	var found *PasswordResetToken
	r.store.View(func(doc *filestore.Document) {
		for userID, list := range doc.PasswordResetTokens {
			for i := range list {
				if list[i].Token == token {
					found = resetFromRecord(userID, list[i])
					return
				}
			}
		}
	})
	if found == nil {
		return nil, httpx.ErrNotFound
	}
	return found, nil
}

func (r *FileResetTokenRepository) MarkUsed(ctx context.Context, token string) (*PasswordResetToken, error) {
	var used *PasswordResetToken
	err := r.store.Update(func(doc *filestore.Document) error {
		for userID, list := range doc.PasswordResetTokens {
			for i := range list {
				if list[i].Token != token {
					continue
				}
				if list[i].Used {
					return httpx.ErrNotFound
				}
				list[i].Used = true
				used = resetFromRecord(userID, list[i])
				return nil
			}
		}
		return httpx.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return used, nil
}

func (r *FileResetTokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	count := 0
	now := time.Now()
	err := r.store.Update(func(doc *filestore.Document) error {
		for userID, list := range doc.PasswordResetTokens {
			kept := list[:0]
			for i := range list {
				if list[i].Expires.After(now) {
					kept = append(kept, list[i])
				} else {
					count++
				}
			}
			if len(kept) == 0 {
				delete(doc.PasswordResetTokens, userID)
			} else {
				doc.PasswordResetTokens[userID] = kept
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func resetFromRecord(userID string, record filestore.PasswordResetToken) *PasswordResetToken {
	return &PasswordResetToken{
		Token:     record.Token,
		UserID:    userID,
		Expires:   record.Expires,
		Used:      record.Used,
		CreatedAt: record.CreatedAt,
	}
}

var (
	_ RefreshTokenRepository = (*FileRefreshTokenRepository)(nil)
	_ ResetTokenRepository   = (*FileResetTokenRepository)(nil)
)
