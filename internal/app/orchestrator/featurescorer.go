package orchestrator

import (
	"context"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/infra/registry"
)

// FeaturesClient is the subset of the Features client the scorer needs.
type FeaturesClient interface {
	GetTrackAudioFeatures(ctx context.Context, id string) (map[domainmood.Feature]float64, error)
}

// RegistryFeatureScorer adapts the ID Registry and Features client
// into the anchor.FeatureScorer interface (DESIGN.md Open Question 8).
// A genre candidate whose Catalog ID has already been resolved to a
// Features ID by an earlier Seed Gatherer run gets real audio-feature
// scoring; anything unresolved falls through to the anchor selector's
// own neutral-0.5 default.
type RegistryFeatureScorer struct {
	registry *registry.Registry
	features FeaturesClient
}

// NewRegistryFeatureScorer builds a RegistryFeatureScorer.
func NewRegistryFeatureScorer(reg *registry.Registry, fc FeaturesClient) *RegistryFeatureScorer {
	return &RegistryFeatureScorer{registry: reg, features: fc}
}

// AudioFeaturesFor implements anchor.FeatureScorer.
func (s *RegistryFeatureScorer) AudioFeaturesFor(ctx context.Context, catalogTrackID string) (map[domainmood.Feature]float64, bool) {
	if s.registry == nil || s.features == nil {
		return nil, false
	}
	featuresID, ok := s.registry.GetValidated(ctx, catalogTrackID)
	if !ok {
		return nil, false
	}
	feats, err := s.features.GetTrackAudioFeatures(ctx, featuresID)
	if err != nil || len(feats) == 0 {
		return nil, false
	}
	return feats, true
}
