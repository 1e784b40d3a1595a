package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
)

const (
	cacheKeyPrefix   = "docqa:ctx:"
	maxStatusRetries = 3
	maxOwnerIDLength = 64
)

// LifecycleService is the only writer of Document.Status.
type LifecycleService struct {
	docRepo *repository.DocumentRepository
	locks   *DocumentLocks
	cache   ResultCache
	now     func() time.Time
}

func NewLifecycleService(docRepo *repository.DocumentRepository, locks *DocumentLocks, cache ResultCache) *LifecycleService {
	return &LifecycleService{
		docRepo: docRepo,
		locks:   locks,
		cache:   cache,
		now:     time.Now,
	}
}

// Transition moves an owner's document to target. Backward or repeated
// happy-path transitions return the document unchanged. Leaving an error
// state is rejected with ErrInvalidTransition.
func (s *LifecycleService) Transition(ctx context.Context, ownerID, documentID string, target model.DocumentStatus) (*model.Document, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, invalidf("document_id", "is required")
	}
	if !target.Valid() {
		return nil, invalidf("status", "unknown status %q", target)
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.docRepo.GetByIDAndOwnerID(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	changed, err := s.apply(ctx, s.docRepo, doc, target, "")
	if err != nil {
		return nil, err
	}
	if changed {
		s.invalidateOwner(ctx, doc.OwnerID)
	}
	return doc, nil
}

// apply runs the transition table against doc and persists the result with
// a compare-and-set on the current status. doc is updated in place. The
// caller must hold the document lock.
func (s *LifecycleService) apply(
	ctx context.Context,
	repo *repository.DocumentRepository,
	doc *model.Document,
	target model.DocumentStatus,
	errorMessage string,
) (bool, error) {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		switch doc.Status.DecideTransition(target) {
		case model.TransitionNoop:
			return false, nil
		case model.TransitionReject:
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, target)
		}

		at := s.now()
		ok, err := repo.CompareAndSetStatus(ctx, doc.ID, doc.Status, target, errorMessage, at)
		if err != nil {
			return false, err
		}
		if ok {
			doc.Status = target
			doc.ErrorMessage = errorMessage
			doc.UpdatedAt = at
			return true, nil
		}

		// another process moved the document; decide again on the fresh row
		fresh, err := repo.GetByID(ctx, doc.ID)
		if err != nil {
			return false, err
		}
		if fresh == nil {
			return false, ErrNotFound
		}
		*doc = *fresh
	}
	return false, fmt.Errorf("%w: status of %s kept changing", ErrInvalidTransition, doc.ID)
}

func (s *LifecycleService) invalidateOwner(ctx context.Context, ownerID string) {
	invalidateOwnerCache(ctx, s.cache, ownerID)
}

func invalidateOwnerCache(ctx context.Context, cache ResultCache, ownerID string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, ownerCachePrefix(ownerID)); err != nil {
		log.Printf("cache: invalidate owner %s failed: %v", ownerID, err)
	}
}

func ownerCachePrefix(ownerID string) string {
	return cacheKeyPrefix + ownerID + ":"
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return invalidf("owner_id", "is required")
	}
	if len(ownerID) > maxOwnerIDLength || strings.ContainsAny(ownerID, ": \t\r\n*?[]\\") {
		return invalidf("owner_id", "must be at most %d characters without spaces, ':' or glob characters", maxOwnerIDLength)
	}
	return nil
}
