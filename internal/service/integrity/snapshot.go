// Package integrity fingerprints batch snapshots so later tampering can be detected.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mamadbah2/compost/internal/domain/models"
)

// timeLayout renders snapshot dates in UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Snapshot is the set of batch facts covered by a fingerprint. Station, week, status,
// version and audit timestamps are deliberately left out.
type Snapshot struct {
	Code            string
	FacilityCode    string
	InitialMass     float64
	CurrentMass     float64
	StartedAt       time.Time
	ClosedAt        *time.Time
	CreatorID       string
	Latitude        *float64
	Longitude       *float64
	ContributionIDs []string
	ContributorIDs  []string
	PhotoReferences []string
}

// BuildSnapshot collects the hashed facts of a batch from its live contributions and photos.
// Tombstoned events and photos of tombstoned events are ignored.
func BuildSnapshot(b models.Batch, events []models.ContributionEvent, photos []models.PhotoRecord) Snapshot {
	live := make(map[string]struct{}, len(events))
	contributionIDs := make([]string, 0, len(events))
	contributors := make(map[string]struct{})
	for _, e := range events {
		if e.DeletedAt != nil {
			continue
		}
		live[e.ID] = struct{}{}
		contributionIDs = append(contributionIDs, e.ID)
		contributors[e.ContributorID] = struct{}{}
	}

	contributorIDs := make([]string, 0, len(contributors))
	for id := range contributors {
		contributorIDs = append(contributorIDs, id)
	}

	references := make([]string, 0, len(photos))
	for _, p := range photos {
		if p.ContributionID != "" {
			if _, ok := live[p.ContributionID]; !ok {
				continue
			}
		}
		references = append(references, p.Reference)
	}

	sort.Strings(contributionIDs)
	sort.Strings(contributorIDs)
	sort.Strings(references)

	return Snapshot{
		Code:            b.Code,
		FacilityCode:    b.FacilityCode,
		InitialMass:     b.InitialMass,
		CurrentMass:     b.CurrentMass,
		StartedAt:       b.StartedAt,
		ClosedAt:        b.ClosedAt,
		CreatorID:       b.CreatorID,
		Latitude:        b.Latitude,
		Longitude:       b.Longitude,
		ContributionIDs: contributionIDs,
		ContributorIDs:  contributorIDs,
		PhotoReferences: references,
	}
}

// Canonical serializes the snapshot deterministically: lexicographically sorted keys,
// no insignificant whitespace, no HTML escaping.
func (s Snapshot) Canonical() ([]byte, error) {
	doc := map[string]any{
		"code":             s.Code,
		"facility_code":    s.FacilityCode,
		"initial_mass":     s.InitialMass,
		"current_mass":     s.CurrentMass,
		"start_date":       formatTime(&s.StartedAt),
		"closure_date":     formatTime(s.ClosedAt),
		"creator_id":       s.CreatorID,
		"latitude":         s.Latitude,
		"longitude":        s.Longitude,
		"contribution_ids": nonNil(s.ContributionIDs),
		"contributor_ids":  nonNil(s.ContributorIDs),
		"photo_references": nonNil(s.PhotoReferences),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeFingerprint returns the lowercase hex SHA-256 of the canonical snapshot.
func ComputeFingerprint(s Snapshot) (string, error) {
	canonical, err := s.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFingerprint recomputes the fingerprint of s and compares it with stored.
func VerifyFingerprint(s Snapshot, stored string) (bool, error) {
	computed, err := ComputeFingerprint(s)
	if err != nil {
		return false, err
	}
	return computed == stored, nil
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
