package api

import (
	"strings"

	"github.com/Aman-CERP/repoindex/internal/build"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/source"
)

// CreateRequest is the body of POST /index/create.
type CreateRequest struct {
	Source      string `json:"source"`
	IsRemoteZip bool   `json:"isRemoteZip,omitempty"`
	// Kind is git, archive or local. Empty infers it from Source and
	// IsRemoteZip.
	Kind     string `json:"kind,omitempty"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	// MaxFileSize is in KB.
	MaxFileSize int      `json:"maxFileSize,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	Include     []string `json:"include,omitempty"`
}

// BuildRequest converts the body into a build request.
func (r CreateRequest) BuildRequest() (build.Request, error) {
	loc := strings.TrimSpace(r.Source)
	kind := source.InferKind(loc, r.IsRemoteZip)
	if r.Kind != "" {
		k, err := source.ParseKind(r.Kind)
		if err != nil {
			return build.Request{}, rerrors.ValidationError(err.Error(), err)
		}
		kind = k
	}
	return build.Request{
		Source: source.Request{
			Kind:     kind,
			Location: loc,
			Name:     r.Name,
		},
		Language:      strings.TrimSpace(r.Language),
		MaxFileSizeKB: r.MaxFileSize,
		Include:       r.Include,
		Exclude:       r.Exclude,
	}, nil
}

// BatchCreateRequest is the body of POST /index/batch/create.
type BatchCreateRequest struct {
	Indexes []CreateRequest `json:"indexes"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	ActiveBuilds int    `json:"activeBuilds"`
}
