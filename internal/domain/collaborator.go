package domain

import "context"

// CatalogClient resolves asset metadata from the external storefront. A
// failure degrades to cached or placeholder metadata and never blocks trading.
type CatalogClient interface {
	FetchCatalog(ctx context.Context) ([]Asset, error)
	FetchAsset(ctx context.Context, id string) (Asset, error)
}

// TransferReceipt confirms an executed funds transfer.
type TransferReceipt struct {
	Signature string
}

// PaymentExecutor moves funds between parties after a sale is committed. It is
// invoked with a bounded timeout; failure is recorded against the sale's
// transfer state and reconciled out-of-band, never rolled back.
type PaymentExecutor interface {
	TransferFunds(ctx context.Context, from, to string, amount int64, currency Currency) (TransferReceipt, error)
}

// CollectionRegistry receives best-effort post-settlement updates to creator
// and collection counters.
type CollectionRegistry interface {
	RecordSale(ctx context.Context, collectionID string, salePrice int64) error
}
