package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bbernstein/velobot/internal/refresher"
	"github.com/bbernstein/velobot/internal/subscription"
)

type APIResponse struct {
	ResponseType string `json:"responseType"`
}

// SubscribeResponse carries the station a subscribe call matched.
// AlreadySubscribed is set when nothing new was stored.
type SubscribeResponse struct {
	APIResponse
	Station           subscription.StationSummary `json:"station"`
	AlreadySubscribed bool                        `json:"alreadySubscribed"`
}

type SubscriptionsResponse struct {
	APIResponse
	UserID   string                        `json:"userId"`
	Stations []subscription.StationSummary `json:"stations"`
}

type StatusResponse struct {
	APIResponse
	Refresher    refresher.Status  `json:"refresher"`
	StationCount int               `json:"stationCount"`
	UserCount    int               `json:"userCount"`
	Generation   uint64            `json:"generation"`
	MatchCache   map[string]uint64 `json:"matchCache,omitempty"`
}

type ErrorResponse struct {
	APIResponse
	Error string `json:"error"`
}

func NewSubscribeResponse(station subscription.StationSummary, alreadySubscribed bool) *SubscribeResponse {
	return &SubscribeResponse{
		APIResponse:       APIResponse{ResponseType: "subscribe"},
		Station:           station,
		AlreadySubscribed: alreadySubscribed,
	}
}

func NewSubscriptionsResponse(userID string, stations []subscription.StationSummary) *SubscriptionsResponse {
	if stations == nil {
		stations = []subscription.StationSummary{}
	}
	return &SubscriptionsResponse{
		APIResponse: APIResponse{ResponseType: "subscriptions"},
		UserID:      userID,
		Stations:    stations,
	}
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		APIResponse: APIResponse{ResponseType: "error"},
		Error:       message,
	}
}

// Response helpers
func Success(body interface{}) (events.APIGatewayProxyResponse, error) {
	return Respond(body, http.StatusOK)
}

// Respond writes body as JSON with the given status
func Respond(body interface{}, statusCode int) (events.APIGatewayProxyResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Error("Internal Server Error", http.StatusInternalServerError)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    jsonHeaders(),
		Body:       string(jsonBody),
	}, nil
}

func Error(message string, statusCode int) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(NewErrorResponse(message))

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    jsonHeaders(),
		Body:       string(body),
	}, nil
}

func jsonHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
}

// ParseCoordinates reads lat and lon from params. Both are required.
func ParseCoordinates(params map[string]string) (float64, float64, error) {
	latStr, hasLat := params["lat"]
	lonStr, hasLon := params["lon"]

	if !hasLat || !hasLon {
		return 0, 0, MissingCoordinatesError{}
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, err
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, err
	}

	// ParseFloat accepts "NaN" and "Inf"; negated ranges reject both
	if !(lat >= -90 && lat <= 90) || !(lon >= -180 && lon <= 180) {
		return 0, 0, InvalidCoordinatesError{}
	}

	return lat, lon, nil
}

type InvalidCoordinatesError struct{}

func (e InvalidCoordinatesError) Error() string {
	return "Invalid coordinates"
}

type MissingCoordinatesError struct{}

func (e MissingCoordinatesError) Error() string {
	return "lat and lon are required"
}
