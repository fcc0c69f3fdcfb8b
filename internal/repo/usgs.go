package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/quakewatch/quakewatch/internal/models"
	"github.com/quakewatch/quakewatch/internal/utils"
)

// USGSClient queries the USGS FDSN event catalog for earthquake records.
type USGSClient struct {
	baseURL    string
	queryPath  string
	httpClient *http.Client
}

// NewUSGSClient constructs a client targeting the configured catalog instance.
func NewUSGSClient(baseURL, queryPath string, timeout time.Duration) *USGSClient {
	return &USGSClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		queryPath: queryPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Query issues one GET against the catalog and returns the raw GeoJSON
// payload. Timeouts are classified separately from other failures so the
// dashboard can report "timed out" rather than a generic failure.
func (c *USGSClient) Query(ctx context.Context, filter models.Filter) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("usgs client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("usgs base URL not configured")
	}

	endpoint := c.queryURL(filter)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError("usgs.query", utils.KindUpstream,
			fmt.Sprintf("catalog returned %s", resp.Status), nil)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return payload, nil
}

func (c *USGSClient) queryURL(filter models.Filter) string {
	params := url.Values{}
	params.Set("format", "geojson")
	params.Set("starttime", filter.Start.Format(models.DateLayout))
	params.Set("endtime", filter.End.Format(models.DateLayout))
	params.Set("minmagnitude", strconv.FormatFloat(filter.MinMagnitude, 'f', -1, 64))
	if filter.MaxMagnitude != nil {
		params.Set("maxmagnitude", strconv.FormatFloat(*filter.MaxMagnitude, 'f', -1, 64))
	}
	if filter.HasBounds() {
		params.Set("minlatitude", strconv.FormatFloat(*filter.MinLatitude, 'f', -1, 64))
		params.Set("maxlatitude", strconv.FormatFloat(*filter.MaxLatitude, 'f', -1, 64))
		params.Set("minlongitude", strconv.FormatFloat(*filter.MinLongitude, 'f', -1, 64))
		params.Set("maxlongitude", strconv.FormatFloat(*filter.MaxLongitude, 'f', -1, 64))
	}
	params.Set("limit", strconv.Itoa(filter.Limit))
	// The catalog's offset parameter is 1-based.
	params.Set("offset", strconv.Itoa(filter.Offset+1))
	params.Set("orderby", "time")

	base := c.baseURL
	cleaned := "/" + strings.TrimLeft(c.queryPath, "/")
	u, err := url.Parse(base)
	if err != nil {
		return base + cleaned + "?" + params.Encode()
	}
	u.Path = path.Join(u.Path, cleaned)
	u.RawQuery = params.Encode()
	return u.String()
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewAppError("usgs.query", utils.KindTimeout, "catalog request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.NewAppError("usgs.query", utils.KindTimeout, "catalog request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return utils.NewAppError("usgs.query", utils.KindUpstream, "catalog request failed", err)
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Mag    *float64 `json:"mag"`
			Place  string   `json:"place"`
			Time   int64    `json:"time"`
			Status string   `json:"status"`
			Net    string   `json:"net"`
			URL    string   `json:"url"`
		} `json:"properties"`
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ParseFeatureCollection decodes a GeoJSON feature collection into earthquake
// records. A malformed payload is a fetch failure, never silently swallowed.
func ParseFeatureCollection(payload []byte) ([]models.EarthquakeRecord, error) {
	var collection featureCollection
	if err := json.Unmarshal(payload, &collection); err != nil {
		return nil, utils.NewAppError("usgs.parse", utils.KindDecode, "malformed catalog response", err)
	}
	if collection.Type != "FeatureCollection" {
		return nil, utils.NewAppError("usgs.parse", utils.KindDecode,
			fmt.Sprintf("unexpected GeoJSON type %q", collection.Type), nil)
	}

	records := make([]models.EarthquakeRecord, 0, len(collection.Features))
	for _, feature := range collection.Features {
		record := models.EarthquakeRecord{
			ID:        feature.ID,
			Place:     feature.Properties.Place,
			Time:      feature.Properties.Time,
			Status:    feature.Properties.Status,
			Source:    feature.Properties.Net,
			DetailURL: feature.Properties.URL,
		}
		if feature.Properties.Mag != nil {
			record.Magnitude = *feature.Properties.Mag
		}
		coords := feature.Geometry.Coordinates
		if len(coords) >= 2 {
			record.Longitude = coords[0]
			record.Latitude = coords[1]
		}
		if len(coords) >= 3 {
			record.DepthKm = coords[2]
		}
		records = append(records, record)
	}
	return records, nil
}
