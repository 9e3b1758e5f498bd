package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// RequestHandler is the API Gateway proxy signature served by lambda.Start
type RequestHandler func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// NewHTTPHandler serves an API Gateway proxy handler over plain HTTP for
// running outside Lambda
func NewHTTPHandler(next RequestHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		request, err := toProxyRequest(r)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		resp, err := next(r.Context(), request)
		if err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Request handler failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		for name, value := range resp.Headers {
			w.Header().Set(name, value)
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.WriteString(w, resp.Body); err != nil {
			log.Debug().Err(err).Msg("Error writing response body")
		}
	})
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	request := events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               make(map[string]string, len(r.Header)),
		QueryStringParameters: make(map[string]string),
		Body:                  string(body),
	}
	for name := range r.Header {
		request.Headers[name] = r.Header.Get(name)
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			request.QueryStringParameters[name] = values[0]
		}
	}
	return request, nil
}
