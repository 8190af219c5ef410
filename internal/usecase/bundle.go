package usecase

import (
	"context"
	"fmt"

	drepo "Frisk/internal/domain/repository"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
)

// LoadBundle fetches and validates the frozen artifact bundle and its model
// set from the blob store. Both blobs must decode and cross-validate or the
// version is unservable.
func LoadBundle(ctx context.Context, store drepo.ArtifactStore, version string) (*feature.Artifacts, *ensemble.ModelSet, error) {
	ab, err := store.LoadArtifacts(ctx, version)
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts %q: %w", version, err)
	}
	arts, err := feature.DecodeArtifacts(ab)
	if err != nil {
		return nil, nil, fmt.Errorf("load artifacts %q: %w", version, err)
	}
	if arts.Version != version {
		return nil, nil, fmt.Errorf("load artifacts %q: blob carries version %q", version, arts.Version)
	}

	mb, err := store.LoadModels(ctx, version)
	if err != nil {
		return nil, nil, fmt.Errorf("load models %q: %w", version, err)
	}
	set, err := ensemble.DecodeModelSet(mb, arts)
	if err != nil {
		return nil, nil, fmt.Errorf("load models %q: %w", version, err)
	}
	return arts, set, nil
}
