package domain

// Asset is display metadata for a sellable asset, resolved from the external
// storefront catalog. It is read-only inside the engine; a stale or missing
// asset never blocks trading operations.
type Asset struct {
	ID           string
	Name         string
	ImageURL     string
	CollectionID string
	Creator      string
}

// PlaceholderAsset returns the degraded-mode metadata used when the storefront
// catalog is unreachable and no cached entry exists.
func PlaceholderAsset(id string) Asset {
	return Asset{
		ID:   id,
		Name: "Unknown Asset",
	}
}
