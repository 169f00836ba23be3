package ports

import "net/http"

// HTTPClient is a minimal HTTP client interface for making requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
