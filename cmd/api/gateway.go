package main

import (
	"context"
	"maps"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// gatewayAdapter serves API Gateway HTTP API (payload v2) events through the
// chi router.
type gatewayAdapter struct {
	proxy *httpadapter.HandlerAdapterV2
}

func newGatewayAdapter(h http.Handler) *gatewayAdapter {
	return &gatewayAdapter{proxy: httpadapter.NewV2(h)}
}

// Handle serves one event. When the caller sent no X-Request-Id, the API
// Gateway request ID is used so gateway access logs and service logs share
// one correlation ID.
func (a *gatewayAdapter) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if id := event.RequestContext.RequestID; id != "" && !hasHeader(event.Headers, "X-Request-Id") {
		headers := maps.Clone(event.Headers)
		if headers == nil {
			headers = make(map[string]string, 1)
		}
		headers["x-request-id"] = id
		event.Headers = headers
	}
	return a.proxy.ProxyWithContext(ctx, event)
}

// hasHeader matches name case-insensitively; HTTP API lowercases header
// names but direct invocations may not.
func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if http.CanonicalHeaderKey(k) == name {
			return true
		}
	}
	return false
}
