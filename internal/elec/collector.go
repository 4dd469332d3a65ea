package elec

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/lingzc/dormlife/internal/metrics"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// Collector samples the surplus of every building that has at least one bound
// account with saved credentials.
type Collector struct {
	store  storage.ElecStore
	portal Portal
	logger *slog.Logger

	// totalDelay spreads building fetches over a window so the portal sees
	// paced traffic.
	totalDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration)
}

// NewCollector builds a Collector with a 30s pacing window.
func NewCollector(store storage.ElecStore, portal Portal, logger *slog.Logger) *Collector {
	return &Collector{
		store:      store,
		portal:     portal,
		logger:     logger,
		totalDelay: 30 * time.Second,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run fetches one reading per bound building. A failure on one building never
// stops the others.
func (c *Collector) Run(ctx context.Context) error {
	accounts, err := c.store.ListBoundAccounts(ctx)
	if err != nil {
		return err
	}

	creds := make(map[string][]Credential)
	for _, a := range accounts {
		creds[a.BuildingID] = append(creds[a.BuildingID], Credential{
			Username: a.PortalID,
			Password: a.PortalPassword,
		})
	}
	if len(creds) == 0 {
		c.logger.Warn("no buildings pending fetch")
		return nil
	}

	buildingIDs := make([]string, 0, len(creds))
	for bid := range creds {
		buildingIDs = append(buildingIDs, bid)
	}

	interval := c.totalDelay / time.Duration(len(buildingIDs))
	ok := 0
	for i, bid := range buildingIDs {
		if i > 0 {
			jitter := time.Duration(rand.Int63n(int64(time.Second))) - 500*time.Millisecond
			c.sleep(ctx, max(0, interval+jitter))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.fetchBuilding(ctx, bid, creds[bid]); err != nil {
			metrics.ElecFetchTotal.WithLabelValues("error").Inc()
			c.logger.Error("fetch building failed", "building_id", bid, "error", err)
			continue
		}
		metrics.ElecFetchTotal.WithLabelValues("ok").Inc()
		ok++
	}
	c.logger.Info("elec fetch round done", "buildings", len(buildingIDs), "succeeded", ok)
	return nil
}

func (c *Collector) fetchBuilding(ctx context.Context, buildingID string, creds []Credential) error {
	building, err := c.store.GetBuilding(ctx, buildingID)
	if err != nil {
		return err
	}

	// Rotate across accounts so a single locked-out credential doesn't carry
	// the whole building.
	rand.Shuffle(len(creds), func(i, j int) { creds[i], creds[j] = creds[j], creds[i] })

	var reading Reading
	var lastErr error
	got := false
	for _, cred := range creds {
		reading, lastErr = c.portal.Surplus(ctx, cred, *building)
		if lastErr == nil {
			got = true
			break
		}
		c.logger.Warn("portal account failed",
			"building_id", buildingID,
			"portal_id", cred.Username,
			"error", lastErr)
	}
	if !got {
		return lastErr
	}

	stat := &models.ElecStat{
		BuildingID: buildingID,
		SearchTime: reading.SearchTime,
		Surplus:    reading.Surplus,
	}
	if err := c.store.InsertStat(ctx, stat); err != nil {
		return err
	}
	c.logger.Info("recorded surplus",
		"building_id", buildingID,
		"surplus", reading.Surplus.StringFixed(2),
		"search_time", reading.SearchTime)
	return nil
}
