// Package geo implements the geospatial classifier pulled out of the
// processor: precision classing, H3 cell derivation, and place/admin-area
// resolution via point-in-polygon, with a Redis cache-aside layer in
// front of Postgres reference tables.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	h3 "github.com/uber/h3-go/v4"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/arc-self/sentinel-pipeline/internal/model"
)

const (
	// Precision thresholds.
	highAccuracyMaxM   = 50.0
	mediumAccuracyMaxM = 200.0

	placeCacheTTL = 5 * time.Minute
	adminCacheTTL = 5 * time.Minute
)

// Classifier resolves the derived geo dimensions for a lat/lon/accuracy
// reading. Constructed with a pool and an optional cache so it is
// independently testable (nil cache degrades to Postgres-only lookups).
type Classifier struct {
	pool  *pgxpool.Pool
	cache *redis.Client
	log   *zap.Logger
}

func NewClassifier(pool *pgxpool.Pool, cache *redis.Client, log *zap.Logger) *Classifier {
	return &Classifier{pool: pool, cache: cache, log: log}
}

// ClassifyPrecision buckets an accuracy reading: high (<50m), medium
// (<200m), coarse otherwise.
func ClassifyPrecision(accuracyMeters float64) model.PrecisionClass {
	switch {
	case accuracyMeters < highAccuracyMaxM:
		return model.PrecisionHigh
	case accuracyMeters < mediumAccuracyMaxM:
		return model.PrecisionMedium
	default:
		return model.PrecisionCoarse
	}
}

// H3Cells is the r7/r9/r11 cell id triple derived unconditionally from a
// lat/lon pair, regardless of precision class.
type H3Cells struct {
	R7  string
	R9  string
	R11 string
}

// CellIDs derives the hierarchical H3 indices at resolutions 7, 9, and
// 11 for a point.
func CellIDs(lat, lon float64) (H3Cells, error) {
	latLng := h3.NewLatLng(lat, lon)
	r7, err := h3.LatLngToCell(latLng, 7)
	if err != nil {
		return H3Cells{}, fmt.Errorf("h3 r7: %w", err)
	}
	r9, err := h3.LatLngToCell(latLng, 9)
	if err != nil {
		return H3Cells{}, fmt.Errorf("h3 r9: %w", err)
	}
	r11, err := h3.LatLngToCell(latLng, 11)
	if err != nil {
		return H3Cells{}, fmt.Errorf("h3 r11: %w", err)
	}
	return H3Cells{R7: r7.String(), R9: r9.String(), R11: r11.String()}, nil
}

// AdminCodes is the admin-area hierarchy resolved for a point; for
// coarse precision ResolveAdmin leaves municipality/sector nil.
type AdminCodes struct {
	AdminID          *string
	CountryCode      *string
	ProvinceCode     *string
	MunicipalityCode *string
	SectorCode       *string
}

type placeRow struct {
	PlaceID string          `json:"place_id"`
	Polygon json.RawMessage `json:"polygon"`
}

type adminRow struct {
	AdminID          string          `json:"admin_id"`
	CountryCode      string          `json:"country_code"`
	ProvinceCode     string          `json:"province_code"`
	MunicipalityCode string          `json:"municipality_code"`
	SectorCode       string          `json:"sector_code"`
	Polygon          json.RawMessage `json:"polygon"`
}

// ResolvePlace finds the place whose polygon contains (lat, lon) and is
// valid at atTime, cache-aside through Redis keyed by the point's r9
// cell with a Postgres fallback on miss.
func (c *Classifier) ResolvePlace(ctx context.Context, lat, lon float64, atTime time.Time) (string, bool, error) {
	cellKey, err := cacheKey("place", lat, lon)
	if err != nil {
		return "", false, err
	}

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cellKey).Result(); err == nil {
			if cached == "" {
				return "", false, nil
			}
			return cached, true, nil
		} else if err != redis.Nil {
			c.log.Warn("place cache get failed", zap.Error(err))
		}
	}

	rows, err := c.pool.Query(ctx, `
		SELECT place_id, polygon FROM places
		WHERE valid_from <= $1 AND valid_to > $1`, atTime)
	if err != nil {
		return "", false, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	point := orb.Point{lon, lat}
	found := ""
	for rows.Next() {
		var pr placeRow
		if err := rows.Scan(&pr.PlaceID, &pr.Polygon); err != nil {
			return "", false, fmt.Errorf("scan place: %w", err)
		}
		var poly orb.Polygon
		if err := json.Unmarshal(pr.Polygon, &poly); err != nil {
			continue
		}
		if planar.PolygonContains(poly, point) {
			found = pr.PlaceID
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("iterate places: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cellKey, found, placeCacheTTL).Err(); err != nil {
			c.log.Warn("place cache set failed", zap.Error(err))
		}
	}

	return found, found != "", nil
}

// ResolveAdmin finds the admin area containing (lat, lon), nulling
// municipality/sector for coarse precision.
func (c *Classifier) ResolveAdmin(ctx context.Context, lat, lon float64, precision model.PrecisionClass) (AdminCodes, error) {
	cellKey, err := cacheKey("admin", lat, lon)
	if err != nil {
		return AdminCodes{}, err
	}

	var ar *adminRow
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cellKey).Result(); err == nil && cached != "" {
			var decoded adminRow
			if err := json.Unmarshal([]byte(cached), &decoded); err == nil {
				ar = &decoded
			}
		} else if err != nil && err != redis.Nil {
			c.log.Warn("admin cache get failed", zap.Error(err))
		}
	}

	if ar == nil {
		rows, err := c.pool.Query(ctx, `
			SELECT admin_id, country_code, province_code, municipality_code, sector_code, polygon
			FROM admin_areas`)
		if err != nil {
			return AdminCodes{}, fmt.Errorf("query admin_areas: %w", err)
		}
		defer rows.Close()

		point := orb.Point{lon, lat}
		for rows.Next() {
			var row adminRow
			if err := rows.Scan(&row.AdminID, &row.CountryCode, &row.ProvinceCode, &row.MunicipalityCode, &row.SectorCode, &row.Polygon); err != nil {
				return AdminCodes{}, fmt.Errorf("scan admin_area: %w", err)
			}
			var poly orb.Polygon
			if err := json.Unmarshal(row.Polygon, &poly); err != nil {
				continue
			}
			if planar.PolygonContains(poly, point) {
				ar = &row
				break
			}
		}
		if err := rows.Err(); err != nil {
			return AdminCodes{}, fmt.Errorf("iterate admin_areas: %w", err)
		}

		if c.cache != nil && ar != nil {
			if encoded, err := json.Marshal(ar); err == nil {
				if err := c.cache.Set(ctx, cellKey, encoded, adminCacheTTL).Err(); err != nil {
					c.log.Warn("admin cache set failed", zap.Error(err))
				}
			}
		}
	}

	if ar == nil {
		return AdminCodes{}, nil
	}

	codes := AdminCodes{
		AdminID:      strPtr(ar.AdminID),
		CountryCode:  strPtr(ar.CountryCode),
		ProvinceCode: strPtr(ar.ProvinceCode),
	}
	if precision != model.PrecisionCoarse {
		codes.MunicipalityCode = strPtr(ar.MunicipalityCode)
		codes.SectorCode = strPtr(ar.SectorCode)
	}
	return codes, nil
}

// EnsureCell lazily populates h3_cells for a cell seen for the first
// time.
func (c *Classifier) EnsureCell(ctx context.Context, cellID string, resolution int, polygon orb.Polygon, centroid orb.Point) error {
	encoded, err := json.Marshal(polygon)
	if err != nil {
		return fmt.Errorf("marshal polygon: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO h3_cells (cell_id, resolution, polygon, centroid_lat, centroid_lon)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cell_id) DO NOTHING`,
		cellID, resolution, encoded, centroid[1], centroid[0])
	if err != nil {
		return fmt.Errorf("ensure h3_cells row: %w", err)
	}
	return nil
}

// CellGeometry derives a cell's boundary polygon and centroid from its
// string index, the inputs EnsureCell needs to populate h3_cells.
func CellGeometry(cellID string) (orb.Polygon, orb.Point, error) {
	var cell h3.Cell
	if err := cell.UnmarshalText([]byte(cellID)); err != nil {
		return nil, orb.Point{}, fmt.Errorf("parse cell %q: %w", cellID, err)
	}

	boundary, err := cell.Boundary()
	if err != nil {
		return nil, orb.Point{}, fmt.Errorf("boundary for %q: %w", cellID, err)
	}
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, ll := range boundary {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	ring = append(ring, ring[0])

	center, err := cell.LatLng()
	if err != nil {
		return nil, orb.Point{}, fmt.Errorf("centroid for %q: %w", cellID, err)
	}

	return orb.Polygon{ring}, orb.Point{center.Lng, center.Lat}, nil
}

// cacheKey buckets a point by its r9 cell so nearby lookups share one
// cache entry.
func cacheKey(kind string, lat, lon float64) (string, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), 9)
	if err != nil {
		return "", fmt.Errorf("h3 cache key: %w", err)
	}
	return kind + ":h3r9:" + cell.String(), nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
