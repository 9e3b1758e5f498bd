package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bbernstein/velobot/internal/models"
	"github.com/bbernstein/velobot/pkg/http/client"
	"github.com/go-playground/validator/v10"
)

// stationID accepts both string and numeric ids from the feed
type stationID string

func (id *stationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = stationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("station id must be a string or number: %w", err)
	}
	*id = stationID(n.String())
	return nil
}

type velobikePosition struct {
	Lat *float64 `json:"Lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"Lon" validate:"required,gte=-180,lte=180"`
}

type velobikeItem struct {
	ID                     stationID         `json:"Id" validate:"required"`
	Address                *string           `json:"Address" validate:"required"`
	Position               *velobikePosition `json:"Position" validate:"required"`
	TotalOrdinaryPlaces    *int              `json:"TotalOrdinaryPlaces" validate:"required,gte=0"`
	AvailableOrdinaryBikes *int              `json:"AvailableOrdinaryBikes" validate:"required,gte=0"`
	TotalElectricPlaces    *int              `json:"TotalElectricPlaces" validate:"required,gte=0"`
	AvailableElectricBikes *int              `json:"AvailableElectricBikes" validate:"required,gte=0"`
}

type velobikeResponse struct {
	Items []json.RawMessage `json:"Items"`
}

// VelobikeFeed reads the velobike parkings endpoint
type VelobikeFeed struct {
	httpClient client.Interface
	url        string
	validate   *validator.Validate
}

var _ models.StationFeed = (*VelobikeFeed)(nil)

func NewVelobikeFeed(httpClient client.Interface, url string) *VelobikeFeed {
	return &VelobikeFeed{
		httpClient: httpClient,
		url:        url,
		validate:   validator.New(),
	}
}

// FetchStations downloads and parses the full station list. Any malformed
// item fails the whole fetch so a refresh never installs a partial list.
func (f *VelobikeFeed) FetchStations(ctx context.Context) ([]models.Station, error) {
	resp, err := f.httpClient.Get(ctx, f.url)
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}
	if resp == nil {
		return nil, &FetchError{URL: f.url, Err: errors.New("no response from feed")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	return f.Parse(resp.Body)
}

// Parse converts a raw feed payload into station records
func (f *VelobikeFeed) Parse(body []byte) ([]models.Station, error) {
	var payload velobikeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{URL: f.url, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if payload.Items == nil {
		return nil, &FetchError{URL: f.url, Err: errors.New("response has no Items list")}
	}
	if len(payload.Items) == 0 {
		return nil, &FetchError{URL: f.url, Err: ErrEmptyFeed}
	}

	stations := make([]models.Station, 0, len(payload.Items))
	for i, raw := range payload.Items {
		var item velobikeItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, &MalformedItemError{Index: i, Err: fmt.Errorf("decoding item: %w", err)}
		}
		if err := f.validate.Struct(item); err != nil {
			return nil, &MalformedItemError{Index: i, ID: string(item.ID), Err: describeValidation(err)}
		}
		stations = append(stations, item.toStation())
	}

	return stations, nil
}

func (item velobikeItem) toStation() models.Station {
	return models.Station{
		ID: string(item.ID),
		Location: models.Location{
			Latitude:  *item.Position.Lat,
			Longitude: *item.Position.Lon,
		},
		Address:           *item.Address,
		OrdinaryCapacity:  *item.TotalOrdinaryPlaces,
		OrdinaryAvailable: *item.AvailableOrdinaryBikes,
		ElectricCapacity:  *item.TotalElectricPlaces,
		ElectricAvailable: *item.AvailableElectricBikes,
	}
}

func describeValidation(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fe.Namespace()+" is required")
		case "gte", "lte":
			messages = append(messages, fe.Namespace()+" must be "+fe.Tag()+" "+fe.Param()+", got "+formatValue(fe.Value()))
		default:
			messages = append(messages, fe.Namespace()+" failed "+fe.Tag())
		}
	}
	return fmt.Errorf("%w: %s", err, strings.Join(messages, "; "))
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
