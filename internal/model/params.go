package model

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query keys read from the page that opened the terminal.
const (
	QueryRepoName   = "repoName"
	QueryCommitHash = "commitHash"
	QueryCommit     = "commit"
	QueryTest       = "test"
	QueryPorts      = "ports"
)

// Params are the validated parameters needed to start a session.
type Params struct {
	RepoName string
	Commit   string
	Test     string

	// Ports is the raw ports value, handed to the invoked tool unmodified.
	// Empty means no ports were requested.
	Ports string

	// PortList holds the ports of Ports that parse as numbers, in order.
	// It is informational; the invoked tool interprets Ports itself.
	PortList []int
}

// HasPorts reports whether a port list was supplied.
func (p *Params) HasPorts() bool {
	return p.Ports != ""
}

// InvalidRequestError is returned by ParseParams. URL is the address the
// parameters were read from and is the only thing shown to the user.
type InvalidRequestError struct {
	URL    string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request %q: %s", e.URL, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRequest) match.
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Diagnostic is the one-shot message emitted to the client.
func (e *InvalidRequestError) Diagnostic() string {
	return "INVALID URL: " + e.URL
}

// ParseParams validates the connection parameters. requireRepo makes repoName
// mandatory. rawURL is only used for error reporting.
func ParseParams(query url.Values, rawURL string, requireRepo bool) (*Params, error) {
	invalid := func(reason string) error {
		return &InvalidRequestError{URL: rawURL, Reason: reason}
	}

	p := &Params{
		RepoName: query.Get(QueryRepoName),
		Commit:   query.Get(QueryCommitHash),
		Test:     query.Get(QueryTest),
		Ports:    query.Get(QueryPorts),
	}
	if p.Commit == "" {
		p.Commit = query.Get(QueryCommit)
	}

	if p.Commit == "" {
		return nil, invalid("missing commit")
	}
	if p.Test == "" {
		return nil, invalid("missing test")
	}
	if requireRepo && p.RepoName == "" {
		return nil, invalid("missing repoName")
	}

	if p.Ports != "" {
		p.PortList = ParsePortList(p.Ports)
	}

	return p, nil
}

// ParsePortList extracts the numeric ports of a comma separated list whose
// elements are either a bare port or a "label:port" pair. Elements that are
// not a port in 1..65535 are skipped.
func ParsePortList(s string) []int {
	var ports []int
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		if i := strings.LastIndexByte(elem, ':'); i >= 0 {
			elem = elem[i+1:]
		}
		port, err := strconv.Atoi(elem)
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		ports = append(ports, port)
	}
	return ports
}

// RequestQuery returns the query parameters for a terminal connection and the
// URL they were taken from. The page that opened the socket is preferred
// since the socket handshake itself usually carries no parameters; the
// handshake's own query string is used when no Referer is sent.
func RequestQuery(r *http.Request) (url.Values, string) {
	if referer := r.Header.Get("Referer"); referer != "" {
		u, err := url.Parse(referer)
		if err != nil {
			return url.Values{}, referer
		}
		return u.Query(), referer
	}
	return r.URL.Query(), r.URL.String()
}
