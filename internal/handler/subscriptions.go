package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bbernstein/velobot/internal/api"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/bbernstein/velobot/internal/subscription"
	"github.com/rs/zerolog/log"
)

const userIDHeader = "X-User-Id"

// SubscriptionManager is the subscription surface the handler drives
type SubscriptionManager interface {
	SubscribeNearest(ctx context.Context, userID string, at models.Location) (subscription.StationSummary, error)
	Unsubscribe(ctx context.Context, userID, stationID string) error
	ListSubscriptions(ctx context.Context, userID string) []subscription.StationSummary
}

// StatusFunc reports process health for GET /status
type StatusFunc func() *api.StatusResponse

// SubscriptionsHandler maps messaging actions onto the subscription service:
//
//	POST   /subscriptions?lat=..&lon=..   subscribe to the nearest station
//	GET    /subscriptions                 list the user's stations
//	DELETE /subscriptions/{stationId}     unsubscribe
//	GET    /status                        refresher and cache status
//
// The user is identified by the X-User-Id header or the userId parameter.
type SubscriptionsHandler struct {
	subscriptions SubscriptionManager
	status        StatusFunc
}

func NewSubscriptionsHandler(subscriptions SubscriptionManager, status StatusFunc) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		subscriptions: subscriptions,
		status:        status,
	}
}

type subscribeRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (h *SubscriptionsHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	segments := pathSegments(request.Path)

	switch {
	case len(segments) == 1 && segments[0] == "status":
		if request.HTTPMethod != http.MethodGet {
			return api.Error("Method not allowed", http.StatusMethodNotAllowed)
		}
		return h.handleStatus()

	case len(segments) == 1 && segments[0] == "subscriptions":
		switch request.HTTPMethod {
		case http.MethodGet:
			return h.handleList(ctx, request)
		case http.MethodPost:
			return h.handleSubscribe(ctx, request)
		}
		return api.Error("Method not allowed", http.StatusMethodNotAllowed)

	case len(segments) == 2 && segments[0] == "subscriptions":
		if request.HTTPMethod != http.MethodDelete {
			return api.Error("Method not allowed", http.StatusMethodNotAllowed)
		}
		stationID := request.PathParameters["stationId"]
		if stationID == "" {
			stationID = segments[1]
		}
		return h.handleUnsubscribe(ctx, request, stationID)
	}

	return api.Error("Not found", http.StatusNotFound)
}

func (h *SubscriptionsHandler) handleSubscribe(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, ok := userIDFrom(request)
	if !ok {
		return api.Error("Missing user id", http.StatusBadRequest)
	}

	lat, lon, err := coordinatesFrom(request)
	if err != nil {
		var invalidCoordErr api.InvalidCoordinatesError
		var missingCoordErr api.MissingCoordinatesError
		if errors.As(err, &invalidCoordErr) || errors.As(err, &missingCoordErr) {
			return api.Error(err.Error(), http.StatusBadRequest)
		}
		return api.Error("Invalid parameters", http.StatusBadRequest)
	}

	station, err := h.subscriptions.SubscribeNearest(ctx, userID, models.Location{Latitude: lat, Longitude: lon})
	if errors.Is(err, subscription.ErrAlreadySubscribed) {
		return api.Respond(api.NewSubscribeResponse(station, true), http.StatusConflict)
	}
	if err != nil {
		return errorResponse(err)
	}
	return api.Respond(api.NewSubscribeResponse(station, false), http.StatusCreated)
}

func (h *SubscriptionsHandler) handleUnsubscribe(ctx context.Context, request events.APIGatewayProxyRequest, stationID string) (events.APIGatewayProxyResponse, error) {
	userID, ok := userIDFrom(request)
	if !ok {
		return api.Error("Missing user id", http.StatusBadRequest)
	}

	if err := h.subscriptions.Unsubscribe(ctx, userID, stationID); err != nil {
		return errorResponse(err)
	}
	return api.Success(api.NewSubscriptionsResponse(userID, h.subscriptions.ListSubscriptions(ctx, userID)))
}

func (h *SubscriptionsHandler) handleList(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, ok := userIDFrom(request)
	if !ok {
		return api.Error("Missing user id", http.StatusBadRequest)
	}
	return api.Success(api.NewSubscriptionsResponse(userID, h.subscriptions.ListSubscriptions(ctx, userID)))
}

func (h *SubscriptionsHandler) handleStatus() (events.APIGatewayProxyResponse, error) {
	if h.status == nil {
		return api.Error("Status not available", http.StatusNotFound)
	}
	return api.Success(h.status())
}

// errorResponse gives every failure kind its own status and message
func errorResponse(err error) (events.APIGatewayProxyResponse, error) {
	var persistErr *subscription.PersistenceError

	switch {
	case errors.Is(err, subscription.ErrNoStationsAvailable):
		return api.Error("No stations available", http.StatusNotFound)
	case errors.Is(err, subscription.ErrUnknownSubscription):
		return api.Error("Subscription not found", http.StatusNotFound)
	case errors.Is(err, subscription.ErrInvalidLocation):
		return api.Error(err.Error(), http.StatusBadRequest)
	case errors.As(err, &persistErr):
		return api.Error("Failed to save subscription", http.StatusBadGateway)
	}

	log.Error().Err(err).Msg("Unhandled subscription error")
	return api.Error("Internal Server Error", http.StatusInternalServerError)
}

func userIDFrom(request events.APIGatewayProxyRequest) (string, bool) {
	for name, value := range request.Headers {
		if strings.EqualFold(name, userIDHeader) && value != "" {
			return value, true
		}
	}
	if userID := request.QueryStringParameters["userId"]; userID != "" {
		return userID, true
	}
	return "", false
}

// coordinatesFrom reads lat/lon from the query string, falling back to a
// JSON body
func coordinatesFrom(request events.APIGatewayProxyRequest) (float64, float64, error) {
	params := request.QueryStringParameters
	if _, ok := params["lat"]; !ok && request.Body != "" {
		var body subscribeRequest
		if err := json.Unmarshal([]byte(request.Body), &body); err != nil {
			return 0, 0, err
		}
		if body.Lat == nil || body.Lon == nil {
			return 0, 0, api.MissingCoordinatesError{}
		}
		loc := models.Location{Latitude: *body.Lat, Longitude: *body.Lon}
		if err := loc.Validate(); err != nil {
			return 0, 0, api.InvalidCoordinatesError{}
		}
		return loc.Latitude, loc.Longitude, nil
	}
	return api.ParseCoordinates(params)
}

// pathSegments splits the request path, dropping an API Gateway stage or
// base path prefix before the first known resource.
func pathSegments(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for i, p := range parts {
		if p == "subscriptions" || p == "status" {
			return parts[i:]
		}
	}
	return parts
}
