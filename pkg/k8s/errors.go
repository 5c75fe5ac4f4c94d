package k8s

import "fmt"

// APIError is returned when the Kubernetes API responds with a non-2xx
// status. It carries the status code so callers can distinguish, e.g.,
// a 404 (object absent) from a 409 (resourceVersion conflict).
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("k8s api: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// NotFound reports whether err is an APIError with status 404.
func NotFound(err error) bool {
	ae, ok := err.(*APIError)
	return ok && ae.Status == 404
}

// Conflict reports whether err is an APIError with status 409 (stale
// resourceVersion on update).
func Conflict(err error) bool {
	ae, ok := err.(*APIError)
	return ok && ae.Status == 409
}
