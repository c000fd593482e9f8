package warehouse

import (
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/points-exporter/internal/retry"
	"google.golang.org/api/googleapi"
)

// clientErrorReasons are BigQuery job error reasons that repeat on retry.
var clientErrorReasons = map[string]bool{
	"invalid":      true,
	"invalidQuery": true,
	"notFound":     true,
	"accessDenied": true,
	"duplicate":    true,
}

// IsClientError reports whether err is a request the warehouse rejected for
// its content or permissions: a 4xx API error other than 429, or a failed
// job with a matching reason. Such errors are not worth retrying.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests
	}
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) {
		return clientErrorReasons[bqErr.Reason]
	}
	return false
}

// permanentIfClientError stops retry.Do on client errors.
func permanentIfClientError(err error) error {
	if IsClientError(err) {
		return retry.Permanent(err)
	}
	return err
}
