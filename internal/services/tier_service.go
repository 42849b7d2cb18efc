package services

import (
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"aiplatform/internal/database"
	"aiplatform/internal/models"
)

// TierService resolves and mutates user tiers. Tier lookups happen on
// every chat request, so results are cached briefly.
type TierService struct {
	db    *database.DB
	cache *cache.Cache
}

func NewTierService(db *database.DB) *TierService {
	return &TierService{
		db:    db,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func tierCacheKey(userID int64) string {
	return fmt.Sprintf("tier:%d", userID)
}

// GetTier returns the user's effective tier, honoring expiry. Expired
// premium tiers read as free even before the expiry job downgrades the
// row.
func (s *TierService) GetTier(userID int64) (string, error) {
	if cached, found := s.cache.Get(tierCacheKey(userID)); found {
		return cached.(string), nil
	}

	var tier string
	var expires *time.Time
	err := s.db.QueryRow(
		`SELECT tier, tier_expires_at FROM users WHERE id = ?`, userID,
	).Scan(&tier, &expires)
	if err != nil {
		return "", fmt.Errorf("failed to load tier for user %d: %w", userID, err)
	}

	if tier == models.TierPremium && expires != nil && time.Now().After(*expires) {
		tier = models.TierFree
	}

	s.cache.Set(tierCacheKey(userID), tier, cache.DefaultExpiration)
	return tier, nil
}

// Upgrade sets the user to premium for the given duration and drops the
// cached tier so the change is visible immediately.
func (s *TierService) Upgrade(userID int64, durationDays int) error {
	expires := time.Now().UTC().AddDate(0, 0, durationDays)
	_, err := s.db.Exec(
		`UPDATE users SET tier = ?, tier_expires_at = ?, updated_at = ? WHERE id = ?`,
		models.TierPremium, expires, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to upgrade user %d: %w", userID, err)
	}

	s.Invalidate(userID)
	log.Printf("✅ User %d upgraded to premium until %s", userID, expires.Format(time.RFC3339))
	return nil
}

// Downgrade reverts the user to the free tier
func (s *TierService) Downgrade(userID int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET tier = ?, tier_expires_at = NULL, updated_at = ? WHERE id = ?`,
		models.TierFree, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to downgrade user %d: %w", userID, err)
	}

	s.Invalidate(userID)
	return nil
}

// Invalidate drops the cached tier for a user
func (s *TierService) Invalidate(userID int64) {
	s.cache.Delete(tierCacheKey(userID))
}

// DowngradeExpired reverts every user whose premium window has lapsed.
// Returns the number of downgraded users. Run periodically by the
// scheduler.
func (s *TierService) DowngradeExpired() (int64, error) {
	res, err := s.db.Exec(
		`UPDATE users SET tier = ?, tier_expires_at = NULL, updated_at = ?
		 WHERE tier = ? AND tier_expires_at IS NOT NULL AND tier_expires_at < ?`,
		models.TierFree, time.Now().UTC(), models.TierPremium, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to downgrade expired tiers: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected > 0 {
		// Cached tiers self-correct through GetTier's expiry check
		s.cache.Flush()
		log.Printf("🔄 Downgraded %d expired premium users", affected)
	}
	return affected, nil
}
