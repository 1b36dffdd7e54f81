// Request descriptors — the immutable value describing one logical API call.
//
// DESIGN: tool wrappers never touch HTTP directly. They build a Descriptor
// (validated at construction time) and hand it to Gateway.Execute. The cache
// key is a pure function of method+path+query with query keys sorted, so the
// same logical read always lands on the same cache entry regardless of the
// order parameters were added in.
package taiga

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// QueryParam is one key/value pair of a request's query string.
// Order of addition is preserved on the wire; canonicalization only applies
// to the cache key.
type QueryParam struct {
	Key   string
	Value string
}

// Descriptor describes one logical API call, independent of transport.
// Values are immutable after Build and safe to share across goroutines.
type Descriptor struct {
	method       string
	path         string
	query        []QueryParam
	body         []byte
	retrySafe    bool
	noPagination bool
	invalidates  []string
}

// Method returns the HTTP method.
func (d Descriptor) Method() string { return d.method }

// Path returns the URL path relative to the configured base URL.
func (d Descriptor) Path() string { return d.path }

// Query returns the query parameters in the order they were added.
func (d Descriptor) Query() []QueryParam { return append([]QueryParam(nil), d.query...) }

// Body returns the JSON payload, or nil for body-less calls.
func (d Descriptor) Body() []byte { return d.body }

// IsMutation reports whether the call changes upstream state.
func (d Descriptor) IsMutation() bool { return d.method != http.MethodGet }

// RetrySafe reports whether a mutation explicitly opted into retries.
// GETs are always safe to retry.
func (d Descriptor) RetrySafe() bool { return !d.IsMutation() || d.retrySafe }

// DisablesPagination reports whether the call requests an unpaginated list.
func (d Descriptor) DisablesPagination() bool { return d.noPagination }

// InvalidationPrefixes returns the cache-key prefixes evicted after this
// mutation succeeds.
func (d Descriptor) InvalidationPrefixes() []string {
	return append([]string(nil), d.invalidates...)
}

// CacheKey returns the deterministic fingerprint of the call: method, path
// and the query with keys sorted. Two descriptors differing only in query
// order share a key.
func (d Descriptor) CacheKey() string {
	var sb strings.Builder
	sb.WriteString(d.method)
	sb.WriteByte(' ')
	sb.WriteString(d.path)

	if len(d.query) > 0 {
		sorted := append([]QueryParam(nil), d.query...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Key != sorted[j].Key {
				return sorted[i].Key < sorted[j].Key
			}
			return sorted[i].Value < sorted[j].Value
		})
		sb.WriteByte('?')
		for i, q := range sorted {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(q.Key)
			sb.WriteByte('=')
			sb.WriteString(q.Value)
		}
	}
	return sb.String()
}

// GetKey returns the cache key a GET for the given path (no query) would use.
// Mutation builders use it to derive invalidation prefixes.
func GetKey(path string) string { return http.MethodGet + " " + path }

// Builder assembles a Descriptor. Zero value is not usable; start from
// NewRequest.
type Builder struct {
	d   Descriptor
	err error
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// NewRequest starts a descriptor for the given method and path.
func NewRequest(method, path string) *Builder {
	b := &Builder{d: Descriptor{method: method, path: path}}
	if !allowedMethods[method] {
		b.err = fmt.Errorf("descriptor: unsupported method %q", method)
	}
	if !strings.HasPrefix(path, "/") {
		b.err = fmt.Errorf("descriptor: path %q must start with /", path)
	}
	return b
}

// Query appends one query parameter. Empty values are dropped so optional
// tool arguments don't produce `key=` noise.
func (b *Builder) Query(key, value string) *Builder {
	if value != "" {
		b.d.query = append(b.d.query, QueryParam{Key: key, Value: value})
	}
	return b
}

// Body sets the JSON payload.
func (b *Builder) Body(body []byte) *Builder {
	b.d.body = append([]byte(nil), body...)
	return b
}

// RetrySafe marks a mutation as safe to retry (idempotent upstream semantics,
// e.g. a PUT that replaces the full resource).
func (b *Builder) RetrySafe() *Builder {
	b.d.retrySafe = true
	return b
}

// DisablePagination requests the full unpaginated list from the upstream.
func (b *Builder) DisablePagination() *Builder {
	b.d.noPagination = true
	return b
}

// Invalidates registers cache-key prefixes to evict after this mutation
// succeeds.
func (b *Builder) Invalidates(prefixes ...string) *Builder {
	b.d.invalidates = append(b.d.invalidates, prefixes...)
	return b
}

// Build validates and returns the immutable descriptor.
func (b *Builder) Build() (Descriptor, error) {
	if b.err != nil {
		return Descriptor{}, b.err
	}
	if !b.d.IsMutation() {
		if b.d.body != nil {
			return Descriptor{}, fmt.Errorf("descriptor: GET %s must not carry a body", b.d.path)
		}
		if len(b.d.invalidates) > 0 {
			return Descriptor{}, fmt.Errorf("descriptor: GET %s must not declare invalidation prefixes", b.d.path)
		}
	}
	return b.d, nil
}

// MustBuild is Build for descriptors whose inputs are compile-time constants.
// It panics on validation errors and is only meant for static call tables.
func (b *Builder) MustBuild() Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
