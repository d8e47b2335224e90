package shipping

import (
	"context"
	"errors"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/money"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service resolves vendor configs and quotes shipping.
type Service interface {
	QuoteVendor(ctx context.Context, vendorID int64, req QuoteRequest) (money.Cents, error)
	LoadConfigs(ctx context.Context, vendorIDs []int64, country Country) (map[int64]*VendorConfig, error)
	SaveConfig(ctx context.Context, cfg *VendorConfig) error
}

type service struct {
	repo        Repository
	maxParallel int
}

func NewService(repo Repository) Service {
	return &service{repo: repo, maxParallel: 8}
}

func (s *service) QuoteVendor(ctx context.Context, vendorID int64, req QuoteRequest) (money.Cents, error) {
	cfg, err := s.repo.GetActiveConfig(ctx, vendorID, req.Country)
	if err != nil {
		return 0, err
	}
	return Quote(cfg, req)
}

// LoadConfigs fetches the active config of every vendor concurrently.
// Vendors without a config are absent from the result rather than failing
// the whole load; the caller decides how to report them.
func (s *service) LoadConfigs(ctx context.Context, vendorIDs []int64, country Country) (map[int64]*VendorConfig, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "LoadConfigs"),
		zap.Int("vendor_count", len(vendorIDs)),
	)

	configs := make([]*VendorConfig, len(vendorIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i, id := range vendorIDs {
		g.Go(func() error {
			cfg, err := s.repo.GetActiveConfig(gctx, id, country)
			if errors.Is(err, ErrNoConfig) {
				return nil
			}
			if err != nil {
				return err
			}
			configs[i] = cfg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("failed to load shipping configs", zap.Error(err))
		return nil, err
	}

	out := make(map[int64]*VendorConfig, len(vendorIDs))
	for i, id := range vendorIDs {
		if configs[i] != nil {
			out[id] = configs[i]
		}
	}
	return out, nil
}

func (s *service) SaveConfig(ctx context.Context, cfg *VendorConfig) error {
	return s.repo.UpsertConfig(ctx, cfg)
}
