package history

import (
	"context"

	"btc-direction/internal/market"
	"btc-direction/internal/storage"
)

// StoreSource reads a snapshot written by the snapshot command. The database
// is opened per call so a concurrent snapshot run is never locked out for long.
type StoreSource struct {
	dataPath string
	symbol   string
}

func NewStoreSource(dataPath, symbol string) *StoreSource {
	return &StoreSource{dataPath: dataPath, symbol: symbol}
}

func (s *StoreSource) History(ctx context.Context) ([]market.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("%v", err)
	}

	store, err := storage.New(s.dataPath)
	if err != nil {
		return nil, unavailable("snapshot store: %v", err)
	}
	defer store.Close()

	obs, err := store.GetPrices(s.symbol)
	if err != nil {
		return nil, unavailable("snapshot %s: %v", s.symbol, err)
	}
	if len(obs) == 0 {
		return nil, unavailable("snapshot has no prices for %s", s.symbol)
	}
	return obs, nil
}
