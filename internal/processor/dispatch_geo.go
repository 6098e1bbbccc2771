package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/geo"
	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/retry"
)

// dispatchGeo implements the geo family's materialization: precision
// classing, H3 derivation, place/admin resolution, the
// precision-monotonic presence upsert, incremental aggregate counters,
// and the customer_360 geo mirror.
func (w *Worker) dispatchGeo(ctx context.Context, q *db.Queries, ev model.NormalizedEvent) error {
	if ev.Geo == nil {
		return fmt.Errorf("%w: geo event missing context.geo", retry.ErrPermanent)
	}

	appUUID, err := pgUUID(ev.AppUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", retry.ErrPermanent, err)
	}

	precision := geo.ClassifyPrecision(ev.Geo.AccuracyM)
	cells, err := geo.CellIDs(ev.Geo.Lat, ev.Geo.Lon)
	if err != nil {
		return fmt.Errorf("%w: %v", retry.ErrPermanent, err)
	}
	hourBucket := ev.OccurredAt.Truncate(time.Hour)

	placeID, hasPlace, err := w.classifier.ResolvePlace(ctx, ev.Geo.Lat, ev.Geo.Lon, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("resolve place: %w", err)
	}
	admin, err := w.classifier.ResolveAdmin(ctx, ev.Geo.Lat, ev.Geo.Lon, precision)
	if err != nil {
		return fmt.Errorf("resolve admin: %w", err)
	}

	var placeText, countryText, provinceText, municipalityText, sectorText = pgText(""), pgText(""), pgText(""), pgText(""), pgText("")
	if hasPlace {
		placeText = pgText(placeID)
	}
	if admin.CountryCode != nil {
		countryText = pgText(*admin.CountryCode)
	}
	if admin.ProvinceCode != nil {
		provinceText = pgText(*admin.ProvinceCode)
	}
	if admin.MunicipalityCode != nil {
		municipalityText = pgText(*admin.MunicipalityCode)
	}
	if admin.SectorCode != nil {
		sectorText = pgText(*admin.SectorCode)
	}

	presenceParams := db.HourlyPresenceUpsertParams{
		AppUUID: appUUID, HourBucket: hourBucket, EventTS: ev.OccurredAt,
		GeoPrecisionClass: precision.String(),
		H3R7:              pgText(cells.R7),
		H3R9:              pgText(cells.R9),
		H3R11:             pgText(cells.R11),
		PlaceID:           placeText, CountryCode: countryText,
		ProvinceCode: provinceText, MunicipalityCode: municipalityText, SectorCode: sectorText,
	}

	if err := w.ensureH3Cell(ctx, cells.R9, 9); err != nil {
		w.log.Warn("h3_cells lazy insert failed", zap.Error(err))
	}

	devicePresence := presenceParams
	devicePresence.EntityID = ev.DeviceIDHash
	deviceInserted, err := q.UpsertDeviceHourlyPresence(ctx, devicePresence)
	if err != nil {
		return fmt.Errorf("upsert device_hourly_presence: %w", err)
	}

	userPresence := presenceParams
	userPresence.EntityID = ev.AnonUserID
	userInserted, err := q.UpsertUserHourlyPresence(ctx, userPresence)
	if err != nil {
		return fmt.Errorf("upsert user_hourly_presence: %w", err)
	}

	// Aggregate counters increment once when either presence upsert
	// inserted a new row. The two tables key on different entity columns
	// (device_id_hash vs anon_user_id), so the two flags can differ; a
	// ping that is new for only one of them still counts once.
	if deviceInserted || userInserted {
		if err := q.IncrementAggH3Hourly(ctx, appUUID, hourBucket, cells.R9); err != nil {
			return fmt.Errorf("increment agg_h3_r9_hourly: %w", err)
		}
		if hasPlace {
			if err := q.IncrementAggPlaceHourly(ctx, appUUID, hourBucket, placeID); err != nil {
				return fmt.Errorf("increment agg_place_hourly: %w", err)
			}
		}
		if admin.AdminID != nil {
			if err := q.IncrementAggAdminHourly(ctx, appUUID, hourBucket, *admin.AdminID); err != nil {
				return fmt.Errorf("increment agg_admin_hourly: %w", err)
			}
		}
	}

	var incDeviceHours, incUserHours int64
	if deviceInserted {
		incDeviceHours = 1
	}
	if userInserted {
		incUserHours = 1
	}

	if err := q.TouchCustomer360(ctx, db.TouchCustomer360Params{
		AppUUID: appUUID, AnonUserID: ev.AnonUserID, EventTS: ev.OccurredAt, EventType: ev.EventName,
		GeoH3R9: pgText(cells.R9), GeoPlaceID: placeText, GeoCountryCode: countryText,
		IncGeoEvents: 1, IncDeviceHours: incDeviceHours, IncUserHours: incUserHours,
	}); err != nil {
		return fmt.Errorf("touch customer_360: %w", err)
	}

	return nil
}

// ensureH3Cell lazily populates h3_cells for a cell id not yet seen; the
// ON CONFLICT DO NOTHING in geo.Classifier.EnsureCell makes repeated
// calls for an already-known cell cheap no-ops.
func (w *Worker) ensureH3Cell(ctx context.Context, cellID string, resolution int) error {
	polygon, centroid, err := geo.CellGeometry(cellID)
	if err != nil {
		return fmt.Errorf("derive cell geometry: %w", err)
	}
	return w.classifier.EnsureCell(ctx, cellID, resolution, polygon, centroid)
}
