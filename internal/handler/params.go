package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/bookshelf/internal/apperror"
)

// positiveQueryInt reads an optional positive integer query parameter.
// An absent or empty parameter yields 0, which services treat as "use the
// default". Anything present must parse as an integer of at least 1.
func positiveQueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}
