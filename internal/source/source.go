// Package source turns a build request into a local directory the indexer
// can walk: a fresh clone, an extracted archive, or an existing path.
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultSourceID is the corpus identity used when a request has no name.
const DefaultSourceID = "default"

// Kind is the explicit source variant supplied by the caller.
type Kind string

const (
	KindGit     Kind = "git"
	KindArchive Kind = "archive"
	KindLocal   Kind = "local"
)

// ParseKind validates a kind name. The empty string is rejected; use
// InferKind for requests that leave it out.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGit, KindArchive, KindLocal:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (use git, archive or local)", s)
	}
}

var scpLike = regexp.MustCompile(`^[\w.-]+@[\w.-]+:[^/]`)

// InferKind picks a kind for requests that do not name one. isRemoteZip
// selects an archive; otherwise URL-shaped locations are git remotes and
// everything else is a local path.
func InferKind(location string, isRemoteZip bool) Kind {
	if isRemoteZip {
		return KindArchive
	}
	if scpLike.MatchString(location) {
		return KindGit
	}
	if u, err := url.Parse(location); err == nil {
		switch u.Scheme {
		case "http", "https", "ssh", "git":
			return KindGit
		}
	}
	return KindLocal
}

// Request describes what to acquire.
type Request struct {
	Kind     Kind
	Location string
	// Name is the logical corpus name. Empty means DefaultSourceID.
	Name string
}

// SourceID returns the corpus identity of the request.
func (r Request) SourceID() string {
	if n := strings.TrimSpace(r.Name); n != "" {
		return n
	}
	return DefaultSourceID
}

// Validate checks the request shape without touching the network or disk.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Location) == "" {
		return fmt.Errorf("source location is required")
	}
	switch r.Kind {
	case KindGit, KindLocal:
	case KindArchive:
		u, err := url.Parse(r.Location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("archive source must be an http(s) URL, got %q", r.Location)
		}
	default:
		return fmt.Errorf("unknown source kind %q", r.Kind)
	}
	return nil
}

// Handle is the resolved repository: where it lives locally and which
// corpus its chunks belong to.
type Handle struct {
	// Location is the local directory to index.
	Location string
	// SourceID is the corpus identity.
	SourceID string
	// GitURL is the origin recorded on every chunk.
	GitURL string
}

// Step is an acquisition milestone reported to the Observer.
type Step int

const (
	StepConnect Step = iota
	StepTransfer
	StepPayload
	StepExtract
	StepClone
	StepLocal
	StepAcquired
)

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepTransfer:
		return "transfer"
	case StepPayload:
		return "payload"
	case StepExtract:
		return "extract"
	case StepClone:
		return "clone"
	case StepLocal:
		return "local"
	case StepAcquired:
		return "acquired"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Observer receives milestones in order. It must not block for long.
type Observer func(Step)

func (o Observer) emit(s Step) {
	if o != nil {
		o(s)
	}
}
