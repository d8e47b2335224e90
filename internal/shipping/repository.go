package shipping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-be/internal/logger"
	"marketplace-be/internal/money"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetActiveConfig(ctx context.Context, vendorID int64, country Country) (*VendorConfig, error)
	UpsertConfig(ctx context.Context, cfg *VendorConfig) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectConfig = `
	SELECT
		id, vendor_id, country, mode, active,
		flat_cents, zone_flat_cents, zone_base_cents,
		rate_per_lb_cents, transport_rate_cents, min_fee_cents,
		overweight_threshold_lbs, overweight_fee_cents, allowed_areas
	FROM vendor_shipping_configs
	WHERE vendor_id = $1 AND country = $2 AND active = TRUE
	LIMIT 1
`

func (r *repository) GetActiveConfig(ctx context.Context, vendorID int64, country Country) (*VendorConfig, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetActiveConfig"),
		zap.Int64("vendor_id", vendorID),
		zap.String("country", string(country)),
	)

	var (
		c                             VendorConfig
		zoneFlat, zoneBase, transport []byte
		allowed                       []string
	)

	err := r.db.QueryRowContext(ctx, selectConfig, vendorID, country).Scan(
		&c.ID, &c.VendorID, &c.Country, &c.Mode, &c.Active,
		&c.FlatCents, &zoneFlat, &zoneBase,
		&c.RatePerLbCents, &transport, &c.MinFeeCents,
		&c.OverweightThresholdLbs, &c.OverweightFeeCents, pq.Array(&allowed),
	)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("no active shipping config")
		return nil, ErrNoConfig
	}
	if err != nil {
		log.Error("failed to query shipping config", zap.Error(err))
		return nil, err
	}

	if c.ZoneFlatCents, err = decodeZones(zoneFlat); err != nil {
		log.Error("bad zone_flat_cents column", zap.Error(err))
		return nil, err
	}
	if c.ZoneBaseCents, err = decodeZones(zoneBase); err != nil {
		log.Error("bad zone_base_cents column", zap.Error(err))
		return nil, err
	}
	if len(transport) > 0 {
		if err := json.Unmarshal(transport, &c.TransportRateCents); err != nil {
			log.Error("bad transport_rate_cents column", zap.Error(err))
			return nil, err
		}
	}
	c.AllowedAreas = allowed

	return &c, nil
}

// UpsertConfig stores cfg as the single active row for its (vendor, country),
// deactivating whatever was active before.
func (r *repository) UpsertConfig(ctx context.Context, cfg *VendorConfig) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpsertConfig"),
		zap.Int64("vendor_id", cfg.VendorID),
		zap.String("country", string(cfg.Country)),
	)

	if err := cfg.Validate(); err != nil {
		log.Warn("rejected shipping config", zap.Error(err))
		return err
	}

	zoneFlat, err := json.Marshal(cfg.ZoneFlatCents)
	if err != nil {
		return err
	}
	zoneBase, err := json.Marshal(cfg.ZoneBaseCents)
	if err != nil {
		return err
	}
	transport, err := json.Marshal(cfg.TransportRateCents)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		UPDATE vendor_shipping_configs
		SET active = FALSE, updated_at = NOW()
		WHERE vendor_id = $1 AND country = $2 AND active = TRUE
	`, cfg.VendorID, cfg.Country); err != nil {
		log.Error("failed to deactivate previous config", zap.Error(err))
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO vendor_shipping_configs (
			vendor_id, country, mode, active,
			flat_cents, zone_flat_cents, zone_base_cents,
			rate_per_lb_cents, transport_rate_cents, min_fee_cents,
			overweight_threshold_lbs, overweight_fee_cents, allowed_areas
		) VALUES ($1,$2,$3,TRUE,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`,
		cfg.VendorID, cfg.Country, cfg.Mode,
		cfg.FlatCents, zoneFlat, zoneBase,
		cfg.RatePerLbCents, transport, cfg.MinFeeCents,
		cfg.OverweightThresholdLbs, cfg.OverweightFeeCents, pq.Array(cfg.AllowedAreas),
	).Scan(&cfg.ID)
	if err != nil {
		log.Error("failed to insert shipping config", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit shipping config", zap.Error(err))
		return err
	}
	committed = true
	cfg.Active = true

	log.Info("shipping config stored", zap.Int64("config_id", cfg.ID))
	return nil
}

func decodeZones(raw []byte) (map[ZoneKey]money.Cents, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[ZoneKey]money.Cents
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode zones: %w", err)
	}
	return m, nil
}
